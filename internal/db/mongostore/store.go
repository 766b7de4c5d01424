// Package mongostore implements domain.TableRepository on MongoDB. Each table
// is one document in the "tables" collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"

	"tablesheet/internal/domain"
)

const tablesCollection = "tables"

type columnDoc struct {
	Name string `bson:"name"`
	Type string `bson:"type"`
}

type tableDoc struct {
	ID            bson.ObjectId `bson:"_id"`
	OwnerID       string        `bson:"ownerId"`
	Name          string        `bson:"name"`
	Columns       []columnDoc   `bson:"columns"`
	CustomColumns []columnDoc   `bson:"customColumns"`
	CreatedAt     time.Time     `bson:"createdAt"`
}

// Store is a MongoDB-backed table repository. The root session is copied
// per operation so concurrent requests use separate sockets.
type Store struct {
	session *mgo.Session
	dbName  string
	now     func() time.Time
}

var _ domain.TableRepository = (*Store)(nil)

// Dial connects to MongoDB and ensures the collection indexes exist.
func Dial(url, dbName string, timeout time.Duration) (*Store, error) {
	session, err := mgo.DialWithTimeout(url, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial mongo: %w", err)
	}
	session.SetMode(mgo.Strong, true)
	s := New(session, dbName)
	if err := s.ensureIndexes(); err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing session.
func New(session *mgo.Session, dbName string) *Store {
	return &Store{session: session, dbName: dbName, now: time.Now}
}

// Close releases the root session.
func (s *Store) Close() {
	s.session.Close()
}

func (s *Store) ensureIndexes() error {
	sess := s.session.Copy()
	defer sess.Close()
	err := sess.DB(s.dbName).C(tablesCollection).EnsureIndex(mgo.Index{
		Key:        []string{"ownerId", "createdAt"},
		Background: true,
	})
	if err != nil {
		return fmt.Errorf("ensure tables index: %w", err)
	}
	return nil
}

// withCollection runs fn against a per-call session copy. mgo has no
// context support, so cancellation is only honoured before the call starts.
func (s *Store) withCollection(ctx context.Context, fn func(c *mgo.Collection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess := s.session.Copy()
	defer sess.Close()
	return fn(sess.DB(s.dbName).C(tablesCollection))
}

// Create inserts a new table document.
func (s *Store) Create(ctx context.Context, ownerID, name string, columns []domain.Column) (*domain.Table, error) {
	if name == "" {
		return nil, domain.ErrValidation("table name is required")
	}
	if len(columns) == 0 {
		return nil, domain.ErrValidation("at least one column is required")
	}
	doc := tableDoc{
		ID:            bson.NewObjectId(),
		OwnerID:       ownerID,
		Name:          name,
		Columns:       toColumnDocs(columns),
		CustomColumns: []columnDoc{},
		// BSON dates have millisecond precision.
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	err := s.withCollection(ctx, func(c *mgo.Collection) error {
		return c.Insert(doc)
	})
	if err != nil {
		return nil, fmt.Errorf("insert table: %w", err)
	}
	return doc.toDomain(), nil
}

// List returns the owner's tables oldest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]domain.Table, error) {
	return s.find(ctx, bson.M{"ownerId": ownerID})
}

// ListAll returns every table oldest first.
func (s *Store) ListAll(ctx context.Context) ([]domain.Table, error) {
	return s.find(ctx, bson.M{})
}

func (s *Store) find(ctx context.Context, query bson.M) ([]domain.Table, error) {
	var docs []tableDoc
	err := s.withCollection(ctx, func(c *mgo.Collection) error {
		return c.Find(query).Sort("createdAt", "_id").All(&docs)
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]domain.Table, len(docs))
	for i := range docs {
		out[i] = *docs[i].toDomain()
	}
	return out, nil
}

// Get returns the table only if ownerID owns it.
func (s *Store) Get(ctx context.Context, ownerID, tableID string) (*domain.Table, error) {
	if !bson.IsObjectIdHex(tableID) {
		return nil, domain.ErrNotFound("table %q not found", tableID)
	}
	var doc tableDoc
	err := s.withCollection(ctx, func(c *mgo.Collection) error {
		return c.Find(ownedBy(ownerID, tableID)).One(&doc)
	})
	if err != nil {
		return nil, mapMgoError(err, tableID)
	}
	return doc.toDomain(), nil
}

// AppendCustomColumn pushes column onto customColumns with findAndModify and
// returns the updated document.
func (s *Store) AppendCustomColumn(ctx context.Context, ownerID, tableID string, column domain.Column) (*domain.Table, error) {
	if !bson.IsObjectIdHex(tableID) {
		return nil, domain.ErrNotFound("table %q not found", tableID)
	}
	var doc tableDoc
	err := s.withCollection(ctx, func(c *mgo.Collection) error {
		_, err := c.Find(ownedBy(ownerID, tableID)).Apply(mgo.Change{
			Update: bson.M{"$push": bson.M{
				"customColumns": columnDoc{Name: column.Name, Type: string(column.Type)},
			}},
			ReturnNew: true,
		}, &doc)
		return err
	})
	if err != nil {
		return nil, mapMgoError(err, tableID)
	}
	return doc.toDomain(), nil
}

// ExistsByName reports whether the owner already has a table named name.
func (s *Store) ExistsByName(ctx context.Context, ownerID, name string) (bool, error) {
	var n int
	err := s.withCollection(ctx, func(c *mgo.Collection) error {
		var err error
		n, err = c.Find(bson.M{"ownerId": ownerID, "name": name}).Limit(1).Count()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("count tables: %w", err)
	}
	return n > 0, nil
}

func ownedBy(ownerID, tableID string) bson.M {
	return bson.M{"_id": bson.ObjectIdHex(tableID), "ownerId": ownerID}
}

func mapMgoError(err error, tableID string) error {
	if errors.Is(err, mgo.ErrNotFound) {
		return domain.ErrNotFound("table %q not found", tableID)
	}
	return err
}

func toColumnDocs(cols []domain.Column) []columnDoc {
	out := make([]columnDoc, len(cols))
	for i, c := range cols {
		out[i] = columnDoc{Name: c.Name, Type: string(c.Type)}
	}
	return out
}

func fromColumnDocs(docs []columnDoc) []domain.Column {
	out := make([]domain.Column, len(docs))
	for i, d := range docs {
		out[i] = domain.Column{Name: d.Name, Type: domain.ColumnType(d.Type)}
	}
	return out
}

func (d *tableDoc) toDomain() *domain.Table {
	return &domain.Table{
		ID:            d.ID.Hex(),
		Name:          d.Name,
		OwnerID:       d.OwnerID,
		BaseColumns:   fromColumnDocs(d.Columns),
		CustomColumns: fromColumnDocs(d.CustomColumns),
		CreatedAt:     d.CreatedAt.UTC(),
	}
}
