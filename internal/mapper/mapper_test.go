package mapper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesheet/internal/domain"
)

var contactsColumns = []domain.Column{
	{Name: "Email", Type: domain.ColumnText},
	{Name: "Signup Date", Type: domain.ColumnDate},
}

func TestProject_Completeness(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		{"Email": "a@x.com", "Signup Date": "2024-03-01", "Extra": "ignored"},
		{"Email": "b@x.com"},
		{},
	}

	rows, stats, err := Project(records, contactsColumns, DatePassthrough)
	require.NoError(t, err)
	require.Len(t, rows, len(records))
	assert.Equal(t, 3, stats.Rows)

	for _, r := range rows {
		require.Len(t, r.Cells, 2)
		assert.Equal(t, "Email", r.Cells[0].Column)
		assert.Equal(t, "Signup Date", r.Cells[1].Column)
	}

	email, ok := rows[2].Get("Email")
	require.True(t, ok)
	require.NotNil(t, email.Value)
	assert.Empty(t, *email.Value)

	date, ok := rows[1].Get("Signup Date")
	require.True(t, ok)
	assert.Nil(t, date.Value)

	_, ok = rows[0].Get("Extra")
	assert.False(t, ok)
}

func TestProject_ContactsScenario(t *testing.T) {
	t.Parallel()

	table := &domain.Table{
		Name:        "Contacts",
		BaseColumns: contactsColumns,
	}
	records := []domain.Record{
		{"Email": "a@x.com", "Signup Date": "2024-03-01"},
		{"Email": "b@x.com"},
	}

	rows, _, err := Project(records, table.Columns(), DatePassthrough)
	require.NoError(t, err)

	data, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"Email":"a@x.com","Signup Date":"2024-03-01"},
		{"Email":"b@x.com","Signup Date":null}
	]`, string(data))

	table.CustomColumns = append(table.CustomColumns, domain.Column{Name: "Notes", Type: domain.ColumnText})
	rows, _, err = Project(records, table.Columns(), DatePassthrough)
	require.NoError(t, err)

	data, err = json.Marshal(rows)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"Email":"a@x.com","Signup Date":"2024-03-01","Notes":""},{"Email":"b@x.com","Signup Date":null,"Notes":""}]`,
		string(data))
}

func TestProject_DatePolicy(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		{"Signup Date": "2024-03-01"},
		{"Signup Date": "03/01/2024"},
		{"Signup Date": "3/1/2024"},
		{"Signup Date": "2024-03-01T10:00:00Z"},
		{"Signup Date": "next tuesday"},
	}
	cols := []domain.Column{{Name: "Signup Date", Type: domain.ColumnDate}}

	tests := []struct {
		name        string
		policy      DatePolicy
		wantNulls   int
		wantInvalid int
	}{
		{name: "passthrough keeps everything", policy: DatePassthrough},
		{name: "empty policy is passthrough", policy: ""},
		{name: "strict nulls unparsable", policy: DateStrict, wantNulls: 1, wantInvalid: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, stats, err := Project(records, cols, tt.policy)
			require.NoError(t, err)
			require.Len(t, rows, len(records))

			nulls := 0
			for _, r := range rows {
				if r.Cells[0].Value == nil {
					nulls++
				}
			}
			assert.Equal(t, tt.wantNulls, nulls)
			assert.Equal(t, tt.wantInvalid, stats.InvalidDates)
		})
	}
}

func TestProject_UnknownPolicy(t *testing.T) {
	t.Parallel()

	_, _, err := Project(nil, contactsColumns, DatePolicy("lenient"))
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestProject_NoRecords(t *testing.T) {
	t.Parallel()

	rows, _, err := Project(nil, contactsColumns, DatePassthrough)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestParseDatePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseDatePolicy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, DateStrict, p)

	p, err = ParseDatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DatePassthrough, p)

	_, err = ParseDatePolicy("fuzzy")
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	records := []domain.Record{{"Email": "a@x.com", "Signup Date": "2024-03-01"}}
	a, _, err := Project(records, contactsColumns, DatePassthrough)
	require.NoError(t, err)
	b, _, err := Project(records, contactsColumns, DatePassthrough)
	require.NoError(t, err)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	changed, _, err := Project([]domain.Record{{"Email": "a@x.com"}}, contactsColumns, DatePassthrough)
	require.NoError(t, err)
	fc, err := Fingerprint(changed)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestProject_CollidingColumnNames(t *testing.T) {
	t.Parallel()

	table := &domain.Table{
		Name:          "Contacts",
		BaseColumns:   []domain.Column{{Name: "X", Type: domain.ColumnText}, {Name: "Email", Type: domain.ColumnText}},
		CustomColumns: []domain.Column{{Name: "X", Type: domain.ColumnDate}},
	}

	rows, _, err := Project([]domain.Record{{}, {"X": "2024-03-01", "Email": "a@x.com"}}, table.Columns(), DatePassthrough)
	require.NoError(t, err)

	for _, r := range rows {
		require.Len(t, r.Cells, 2)
		assert.Equal(t, "X", r.Cells[0].Column)
		assert.Equal(t, domain.ColumnDate, r.Cells[0].Type)
		assert.Equal(t, "Email", r.Cells[1].Column)
	}

	data, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.Equal(t, `[{"X":null,"Email":""},{"X":"2024-03-01","Email":"a@x.com"}]`, string(data))
	assert.Len(t, table.Columns(), 3, "declared columns are left untouched")
}
