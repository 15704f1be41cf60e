package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"

	"otcdesk/core/types"
	"otcdesk/native/otc"
)

var (
	bucketDesk         = []byte("desk")
	bucketTokens       = []byte("tokens")
	bucketConsignments = []byte("consignments")
	bucketOffers       = []byte("offers")
	bucketBalances     = []byte("balances")

	deskKey = []byte("singleton")
)

// Store persists desk entities and custody balances in a single bolt file.
// Every engine operation runs inside one read-write transaction, so either
// all of its record puts and balance moves land or none do.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDesk, bucketTokens, bucketConsignments, bucketOffers, bucketBalances} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTransaction runs fn inside a single read-write transaction. A returned
// error rolls back every mutation fn performed.
func (s *Store) InTransaction(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Tx exposes the entity state and the custody ledger of one transaction. It
// satisfies both otc.State and otc.Ledger so engine record mutations and
// settlement transfers commit atomically.
type Tx struct {
	tx *bolt.Tx
}

func getJSON[T any](b *bolt.Bucket, key []byte) (*T, bool) {
	raw := b.Get(key)
	if raw == nil {
		return nil, false
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, false
	}
	return out, true
}

func putJSON(b *bolt.Bucket, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.Put(key, raw)
}

func itob(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// DeskGet implements otc.State.
func (t *Tx) DeskGet() (*otc.Desk, bool) {
	return getJSON[otc.Desk](t.tx.Bucket(bucketDesk), deskKey)
}

// DeskPut implements otc.State.
func (t *Tx) DeskPut(d *otc.Desk) error {
	if d == nil {
		return errors.New("store: nil desk")
	}
	return putJSON(t.tx.Bucket(bucketDesk), deskKey, d)
}

// TokenGet implements otc.State.
func (t *Tx) TokenGet(asset types.Address) (*otc.TokenRegistry, bool) {
	return getJSON[otc.TokenRegistry](t.tx.Bucket(bucketTokens), asset[:])
}

// TokenPut implements otc.State.
func (t *Tx) TokenPut(token *otc.TokenRegistry) error {
	if token == nil {
		return errors.New("store: nil token registry")
	}
	return putJSON(t.tx.Bucket(bucketTokens), token.Asset[:], token)
}

// ConsignmentGet implements otc.State.
func (t *Tx) ConsignmentGet(id uint64) (*otc.Consignment, bool) {
	return getJSON[otc.Consignment](t.tx.Bucket(bucketConsignments), itob(id))
}

// ConsignmentPut implements otc.State.
func (t *Tx) ConsignmentPut(c *otc.Consignment) error {
	if c == nil {
		return errors.New("store: nil consignment")
	}
	return putJSON(t.tx.Bucket(bucketConsignments), itob(c.ID), c)
}

// OfferGet implements otc.State.
func (t *Tx) OfferGet(id uint64) (*otc.Offer, bool) {
	return getJSON[otc.Offer](t.tx.Bucket(bucketOffers), itob(id))
}

// OfferPut implements otc.State.
func (t *Tx) OfferPut(o *otc.Offer) error {
	if o == nil {
		return errors.New("store: nil offer")
	}
	return putJSON(t.tx.Bucket(bucketOffers), itob(o.ID), o)
}

// Offers returns up to limit offers with IDs >= start, in ID order.
func (t *Tx) Offers(start uint64, limit int) ([]*otc.Offer, error) {
	out := make([]*otc.Offer, 0, limit)
	cursor := t.tx.Bucket(bucketOffers).Cursor()
	for k, v := cursor.Seek(itob(start)); k != nil && len(out) < limit; k, v = cursor.Next() {
		offer := new(otc.Offer)
		if err := json.Unmarshal(v, offer); err != nil {
			return nil, fmt.Errorf("decode offer %x: %w", k, err)
		}
		out = append(out, offer)
	}
	return out, nil
}

// Consignments returns up to limit consignments with IDs >= start, in ID
// order.
func (t *Tx) Consignments(start uint64, limit int) ([]*otc.Consignment, error) {
	out := make([]*otc.Consignment, 0, limit)
	cursor := t.tx.Bucket(bucketConsignments).Cursor()
	for k, v := cursor.Seek(itob(start)); k != nil && len(out) < limit; k, v = cursor.Next() {
		cons := new(otc.Consignment)
		if err := json.Unmarshal(v, cons); err != nil {
			return nil, fmt.Errorf("decode consignment %x: %w", k, err)
		}
		out = append(out, cons)
	}
	return out, nil
}

func balanceKey(account, asset types.Address) []byte {
	key := make([]byte, 0, len(account)+len(asset))
	key = append(key, account[:]...)
	key = append(key, asset[:]...)
	return key
}

func (t *Tx) readBalance(key []byte) uint64 {
	raw := t.tx.Bucket(bucketBalances).Get(key)
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func (t *Tx) writeBalance(key []byte, value uint64) error {
	return t.tx.Bucket(bucketBalances).Put(key, itob(value))
}

// Balance implements otc.Ledger.
func (t *Tx) Balance(account, asset types.Address) uint64 {
	return t.readBalance(balanceKey(account, asset))
}

// Transfer implements otc.Ledger. The move is part of the surrounding
// transaction, so a later engine error unwinds it.
func (t *Tx) Transfer(from, to, asset types.Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return errors.New("store: transfer requires both accounts")
	}
	if amount == 0 || from == to {
		return nil
	}
	fromKey := balanceKey(from, asset)
	toKey := balanceKey(to, asset)
	fromBal := t.readBalance(fromKey)
	if fromBal < amount {
		return fmt.Errorf("store: insufficient funds: %s has %d, needs %d", from.Hex(), fromBal, amount)
	}
	toBal := t.readBalance(toKey)
	if toBal > math.MaxUint64-amount {
		return errors.New("store: balance overflow")
	}
	if err := t.writeBalance(fromKey, fromBal-amount); err != nil {
		return err
	}
	return t.writeBalance(toKey, toBal+amount)
}

// Credit mints balance onto an account. Exposed for deposit reconciliation
// and test funding; not reachable from engine operations.
func (t *Tx) Credit(account, asset types.Address, amount uint64) error {
	if account.IsZero() {
		return errors.New("store: credit requires an account")
	}
	key := balanceKey(account, asset)
	current := t.readBalance(key)
	if current > math.MaxUint64-amount {
		return errors.New("store: balance overflow")
	}
	return t.writeBalance(key, current+amount)
}
