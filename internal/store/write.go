package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/roach88/querykit/internal/query"
)

// CreateOne inserts rec, assigning a uuid id when it has none, and returns
// the stored row. Keys that are not declared fields are not stored.
func (r *Repository) CreateOne(ctx context.Context, rec query.Record) (query.Record, error) {
	var created query.Record
	err := r.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = r.insert(ctx, tx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateMany inserts every record in one transaction: either all of them are
// stored or none is. Results follow the input order.
func (r *Repository) CreateMany(ctx context.Context, recs []query.Record) ([]query.Record, error) {
	out := make([]query.Record, 0, len(recs))
	err := r.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rec := range recs {
			created, err := r.insert(ctx, tx, rec)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) insert(ctx context.Context, tx bun.IDB, rec query.Record) (query.Record, error) {
	row, err := marshalRecord(r.entity, rec)
	if err != nil {
		return nil, err
	}
	id, ok := row[r.entity.IDField]
	if !ok || id == nil {
		id = r.newID()
		row[r.entity.IDField] = id
	}
	ib, err := r.builder.BuildInsert(row)
	if err != nil {
		return nil, err
	}
	if _, err := r.exec(ctx, tx, ib); err != nil {
		return nil, err
	}
	created, err := r.findByID(ctx, tx, id, query.Filter{})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, query.NewNotFoundError(id)
	}
	return created, nil
}

// UpdateOne sets update on the record with id matching f and returns the
// updated row. The id itself is never changed.
func (r *Repository) UpdateOne(ctx context.Context, id any, update query.Record, f query.Filter) (query.Record, error) {
	var updated query.Record
	err := r.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.findByID(ctx, tx, id, f)
		if err != nil {
			return err
		}
		if current == nil {
			return query.NewNotFoundError(id)
		}
		if !r.hasWritable(update) {
			updated = current
			return nil
		}
		if _, err := r.update(ctx, tx, update, query.IDFilter(r.entity.IDField, id)); err != nil {
			return err
		}
		updated, err = r.findByID(ctx, tx, id, query.Filter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateMany sets update on every record matching f and returns how many
// records matched.
func (r *Repository) UpdateMany(ctx context.Context, update query.Record, f query.Filter) (int64, error) {
	if !r.hasWritable(update) {
		return r.Count(ctx, f)
	}
	return r.update(ctx, r.store.db, update, f)
}

func (r *Repository) update(ctx context.Context, db bun.IDB, update query.Record, f query.Filter) (int64, error) {
	row, err := marshalRecord(r.entity, update)
	if err != nil {
		return 0, err
	}
	ub, err := r.builder.BuildUpdate(row, f)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, db, ub)
}

// DeleteOne removes the record with id matching f and returns it.
func (r *Repository) DeleteOne(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	var deleted query.Record
	err := r.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.findByID(ctx, tx, id, f)
		if err != nil {
			return err
		}
		if current == nil {
			return query.NewNotFoundError(id)
		}
		db, err := r.builder.BuildDelete(query.IDFilter(r.entity.IDField, id))
		if err != nil {
			return err
		}
		if _, err := r.exec(ctx, tx, db); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteMany removes every record matching f and returns how many were
// removed.
func (r *Repository) DeleteMany(ctx context.Context, f query.Filter) (int64, error) {
	db, err := r.builder.BuildDelete(f)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, r.store.db, db)
}
