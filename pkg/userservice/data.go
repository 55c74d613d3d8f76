package userservice

import (
	"context"

	"github.com/planethub/planethub/pkg/svcerr"
)

// Per-user key/value storage with LRU-bounded total size.

func dataKey(uid, key string) string { return userKey(uid, "app:data:"+key) }
func dataListKey(uid string) string  { return userKey(uid, "app:list") }
func dataSizeKey(uid string) string  { return userKey(uid, "app:size") }

// estimateSize is the accounting charge for one entry. Empty values are
// free so that clearing a key effectively releases its budget.
func estimateSize(key, value string) int64 {
	if value == "" {
		return 0
	}
	return int64(2*len(key) + len(value))
}

func validDataKey(key string, maxLen int) bool {
	if key == "" || len(key) > maxLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetData reads one user-data value ("" if unset).
func (s *Service) GetData(ctx context.Context, uid, key string) (string, error) {
	v, _, err := s.db.Get(ctx, dataKey(uid, key))
	return v, err
}

// SetData writes one user-data value, moves the key to the head of the
// LRU list and evicts from the tail while the tracked total exceeds the
// configured budget. The eviction loop stops when the list runs dry, so
// an inconsistent stored total cannot spin it forever.
func (s *Service) SetData(ctx context.Context, uid, key, value string) error {
	if !validDataKey(key, s.cfg.Data.MaxKeySize) {
		return svcerr.BadRequest("Invalid key")
	}
	if len(value) > s.cfg.Data.MaxValueSize {
		return svcerr.BadRequest("Invalid value")
	}

	old, _, err := s.db.Get(ctx, dataKey(uid, key))
	if err != nil {
		return err
	}
	if err := s.db.Set(ctx, dataKey(uid, key), value); err != nil {
		return err
	}
	if err := s.db.LRem(ctx, dataListKey(uid), key); err != nil {
		return err
	}
	if err := s.db.LPush(ctx, dataListKey(uid), key); err != nil {
		return err
	}

	delta := estimateSize(key, value) - estimateSize(key, old)
	total, err := s.db.IncrBy(ctx, dataSizeKey(uid), delta)
	if err != nil {
		return err
	}

	for total > int64(s.cfg.Data.MaxTotalSize) {
		tail, ok, err := s.db.RPop(ctx, dataListKey(uid))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if tail == key {
			// The key just written is the last one left; it stays
			// even when it alone exceeds the budget.
			if err := s.db.LPush(ctx, dataListKey(uid), tail); err != nil {
				return err
			}
			break
		}
		victim, _, err := s.db.Get(ctx, dataKey(uid, tail))
		if err != nil {
			return err
		}
		if err := s.db.Del(ctx, dataKey(uid, tail)); err != nil {
			return err
		}
		total, err = s.db.IncrBy(ctx, dataSizeKey(uid), -estimateSize(tail, victim))
		if err != nil {
			return err
		}
	}
	return nil
}
