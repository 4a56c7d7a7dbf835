package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"
)

const (
	snapshotKey = "vetai:quota"

	// Long enough to survive a restart on the next day, short enough that a
	// forgotten deployment does not keep stale counters forever.
	snapshotTTL = 48 * time.Hour
)

type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) Load(ctx context.Context) (*Snapshot, error) {
	valkeyResponse := s.client.Do(ctx, s.client.B().Get().Key(snapshotKey).Build())
	if err := valkeyResponse.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	data, err := valkeyResponse.AsBytes()
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quota snapshot: %v", err)
	}
	return &snapshot, nil
}

func (s *ValkeyStore) Save(ctx context.Context, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal quota snapshot: %v", err)
	}
	return s.client.Do(
		ctx, s.client.B().Set().
			Key(snapshotKey).
			Value(valkey.BinaryString(data)).
			Ex(snapshotTTL).
			Build(),
	).Error()
}
