package docstore

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses a raw document into T and validates its struct tags.
func Decode[T any](raw bson.Raw) (T, error) {
	var v T
	if err := bson.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("validate: %w", err)
	}
	return v, nil
}

// FindAll reads and decodes a collection. Malformed documents are logged and
// skipped; only the read itself can fail.
func FindAll[T any](ctx context.Context, s Store, log *zap.SugaredLogger, account string, c Collection, filter bson.M) ([]T, error) {
	raws, err := s.Find(ctx, account, c, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		v, err := Decode[T](raw)
		if err != nil {
			log.Warnw("skipping malformed document",
				"account", account,
				"collection", string(c),
				"id", rawID(raw),
				"error", err,
			)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// GetOne reads and decodes one document.
func GetOne[T any](ctx context.Context, s Store, account string, c Collection, id string) (*T, error) {
	raw, err := s.Get(ctx, account, c, id)
	if err != nil {
		return nil, err
	}
	v, err := Decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", c, id, err)
	}
	return &v, nil
}

func rawID(raw bson.Raw) string {
	if v, err := raw.LookupErr("_id"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			return s
		}
		return v.String()
	}
	return ""
}
