// Package docstore is the per-account document store the turnover engine reads
// and mutates. Collections are scoped by account; multi-document writes go
// through Commit, which is all-or-nothing and capped at MaxBatchOps.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"library_turnover/backend/internal/shared"
)

// Collection names a per-account collection
type Collection string

const (
	AcademicYears      Collection = "academicYears"
	EducationalLevels  Collection = "educationalLevels"
	Students           Collection = "students"
	Classes            Collection = "classes"
	Books              Collection = "books"
	Loans              Collection = "loans"
	DashboardSnapshots Collection = "dashboardSnapshots"
	TurnoverHistory    Collection = "yearTurnoverHistory"
)

// Collections lists every per-account collection
var Collections = []Collection{
	AcademicYears, EducationalLevels, Students, Classes, Books, Loans, DashboardSnapshots, TurnoverHistory,
}

// MaxBatchOps is the per-commit operation limit
const MaxBatchOps = shared.MaxStoreBatchOps

var (
	ErrNotFound       = errors.New("document not found")
	ErrAlreadyExists  = errors.New("document already exists")
	ErrBatchTooLarge  = fmt.Errorf("batch exceeds %d operations", MaxBatchOps)
	ErrInvalidAccount = errors.New("invalid account id")
)

// Store is the document store seen by the engine. Documents come back as raw
// BSON and are decoded at the edge with FindAll / GetOne.
type Store interface {
	Get(ctx context.Context, account string, c Collection, id string) (bson.Raw, error)
	// Find returns documents matching every equality in filter, ordered by id.
	Find(ctx context.Context, account string, c Collection, filter bson.M) ([]bson.Raw, error)
	Create(ctx context.Context, account string, c Collection, id string, doc interface{}) error
	// Set writes doc at id, replacing any existing document.
	Set(ctx context.Context, account string, c Collection, id string, doc interface{}) error
	Update(ctx context.Context, account string, c Collection, id string, fields bson.M) error
	Delete(ctx context.Context, account string, c Collection, id string) error
	// Commit applies ops atomically in order.
	Commit(ctx context.Context, account string, ops []Op) error
}

// OpKind is the type of a batched write
type OpKind int

const (
	OpCreate OpKind = iota
	OpSet
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Op is one write inside a Commit
type Op struct {
	Kind       OpKind
	Collection Collection
	ID         string
	Doc        interface{}
	Fields     bson.M
}

func CreateOp(c Collection, id string, doc interface{}) Op {
	return Op{Kind: OpCreate, Collection: c, ID: id, Doc: doc}
}

func SetOp(c Collection, id string, doc interface{}) Op {
	return Op{Kind: OpSet, Collection: c, ID: id, Doc: doc}
}

func UpdateOp(c Collection, id string, fields bson.M) Op {
	return Op{Kind: OpUpdate, Collection: c, ID: id, Fields: fields}
}

func DeleteOp(c Collection, id string) Op {
	return Op{Kind: OpDelete, Collection: c, ID: id}
}

var accountPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateAccount rejects account ids that cannot be used in a collection path.
func ValidateAccount(account string) error {
	if !accountPattern.MatchString(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return nil
}

func checkBatch(account string, ops []Op) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("%w: got %d", ErrBatchTooLarge, len(ops))
	}
	for i, op := range ops {
		if op.ID == "" {
			return fmt.Errorf("op %d (%s %s): empty id", i, op.Kind, op.Collection)
		}
		if op.Kind == OpUpdate && len(op.Fields) == 0 {
			return fmt.Errorf("op %d (update %s/%s): no fields", i, op.Collection, op.ID)
		}
	}
	return nil
}

// toDocument marshals doc into a bson.M carrying the given id as _id.
func toDocument(id string, doc interface{}) (bson.M, error) {
	var m bson.M
	switch d := doc.(type) {
	case bson.M:
		m = make(bson.M, len(d)+1)
		for k, v := range d {
			m[k] = v
		}
	default:
		converted, err := shared.ToDocument(doc)
		if err != nil {
			return nil, err
		}
		m = converted
	}
	m["_id"] = id
	return m, nil
}
