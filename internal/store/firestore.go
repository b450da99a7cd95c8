// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/relabs-tech/step_tracker/internal/pedometer"
)

// firestoreRecord is the document shape. Dates stay strings so the
// document reads the same as the JSON file.
type firestoreRecord struct {
	Date       string    `firestore:"date"`
	StepCount  int       `firestore:"steps"`
	Calories   int       `firestore:"calories"`
	LastUpdate time.Time `firestore:"lastUpdate"`
}

func toFirestore(rec pedometer.DailyStepRecord) firestoreRecord {
	return firestoreRecord{
		Date:       rec.Date,
		StepCount:  rec.StepCount,
		Calories:   rec.Calories,
		LastUpdate: rec.LastUpdate,
	}
}

func (r firestoreRecord) record() pedometer.DailyStepRecord {
	return pedometer.DailyStepRecord{
		Date:       r.Date,
		StepCount:  r.StepCount,
		Calories:   r.Calories,
		LastUpdate: r.LastUpdate,
	}
}

// FirestoreStore keeps the current record as document <collection>/<key>
// and each day under <collection>/<key>/days/<date>.
// History reads the days of historyKey.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	historyKey string
}

func NewFirestoreStore(ctx context.Context, projectID, collection, historyKey string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection, historyKey: historyKey}, nil
}

func (f *FirestoreStore) Get(ctx context.Context, key string) (*pedometer.DailyStepRecord, error) {
	snap, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var doc firestoreRecord
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	rec := doc.record()
	return &rec, nil
}

func (f *FirestoreStore) Set(ctx context.Context, key string, rec pedometer.DailyStepRecord) error {
	doc := toFirestore(rec)
	current := f.client.Collection(f.collection).Doc(key)

	day := current.Collection("days").Doc(rec.Date)

	err := f.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(current, doc); err != nil {
			return err
		}
		return tx.Set(day, doc)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// History returns up to limit days, most recent first. limit <= 0 means all.
func (f *FirestoreStore) History(ctx context.Context, limit int) ([]pedometer.DailyStepRecord, error) {
	q := f.client.Collection(f.collection).Doc(f.historyKey).Collection("days").
		OrderBy("date", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	out := make([]pedometer.DailyStepRecord, 0, len(docs))
	for _, d := range docs {
		var doc firestoreRecord
		if err := d.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode day %s: %w", d.Ref.ID, err)
		}
		out = append(out, doc.record())
	}
	return out, nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}
