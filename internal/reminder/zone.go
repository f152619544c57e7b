package reminder

import (
	"context"
	"time"
)

// zonedStore reads every record back in the service zone. Durable drivers return
// timestamps in a fixed offset or Local, and calendar steps (AddDate) taken in a stale
// offset drift by the DST delta.
type zonedStore struct {
	Store
	loc *time.Location
}

func (z zonedStore) in(r Record) Record {
	r.FireAt = r.FireAt.In(z.loc)
	r.CreatedAt = r.CreatedAt.In(z.loc)
	r.UpdatedAt = r.UpdatedAt.In(z.loc)
	return r
}

func (z zonedStore) Insert(ctx context.Context, r Record) (Record, error) {
	out, err := z.Store.Insert(ctx, r)
	return z.in(out), err
}

func (z zonedStore) Find(ctx context.Context, id, ownerID string) (Record, error) {
	out, err := z.Store.Find(ctx, id, ownerID)
	return z.in(out), err
}

func (z zonedStore) Update(ctx context.Context, r Record) (Record, error) {
	out, err := z.Store.Update(ctx, r)
	return z.in(out), err
}

func (z zonedStore) List(ctx context.Context) ([]Record, error) {
	recs, err := z.Store.List(ctx)
	for i := range recs {
		recs[i] = z.in(recs[i])
	}
	return recs, err
}
