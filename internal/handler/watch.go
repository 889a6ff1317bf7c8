package handler

import (
	"encoding/json"
	"fmt"
	"sync"

	"healthcare-records-api/internal/docstore"
	"healthcare-records-api/internal/model"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/rpc"
)

// WatchRecords streams the caller's scoped view of a collection: one event
// on subscribe and one after every change. Only the newest pending
// snapshot is sent when the client reads slower than the store changes.
func (h *Handler) WatchRecords(req *rpc.WatchRequest, stream rpc.WatchStream) error {
	ctx := stream.Context()
	c := model.Collection(req.Collection)
	if _, err := records.Snapshot(c, nil); err != nil {
		return h.toStatus(err)
	}

	var (
		mu      sync.Mutex
		latest  []docstore.Record
		failure error
	)
	ready := make(chan struct{}, 1)
	listener := func(recs []docstore.Record, err error) {
		mu.Lock()
		latest, failure = recs, err
		mu.Unlock()
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	stop, err := h.records.Watch(ctx, caller(ctx), c, req.PatientID, listener)
	if err != nil {
		return h.toStatus(err)
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ready:
		}
		mu.Lock()
		recs, ferr := latest, failure
		mu.Unlock()
		if ferr != nil {
			return h.toStatus(ferr)
		}
		ev, err := watchEvent(c, recs)
		if err != nil {
			return h.toStatus(err)
		}
		if err := stream.Send(ev); err != nil {
			return err
		}
	}
}

func watchEvent(c model.Collection, recs []docstore.Record) (*rpc.WatchEvent, error) {
	typed, err := records.Snapshot(c, recs)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(typed)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", c, err)
	}
	return &rpc.WatchEvent{Collection: string(c), Items: raw}, nil
}
