package faults

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/domain/alarm"
	pb "github.com/LeoXDXp/ACS/internal/pb/v1"
)

// Repository defines persistence operations for collected fault states.
type Repository interface {
	Load(ctx context.Context) ([]*alarm.Record, error)
	Save(ctx context.Context, records []*alarm.Record) error
}

// FileRepository persists records to a JSON file on disk.
// JSON is produced with protojson from the wire ListValue so the file reads
// the same as a List response.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes access to the file.
	mu sync.Mutex
}

// ErrNotFound is returned when the file does not exist yet.
var ErrNotFound = errors.New("fault states not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the records from disk.
func (r *FileRepository) Load(_ context.Context) ([]*alarm.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read fault states file: %w", err)
	}

	var list structpb.ListValue
	if err = protojson.Unmarshal(contents, &list); err != nil {
		return nil, fmt.Errorf("decode fault states file: %w", err)
	}

	records, err := pb.DecodeRecords(&list)
	if err != nil {
		return nil, fmt.Errorf("decode fault states file: %w", err)
	}

	return records, nil
}

// Save replaces the file contents with records.
func (r *FileRepository) Save(_ context.Context, records []*alarm.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := pb.EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode fault states: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode fault states: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write fault states file: %w", err)
	}

	return nil
}
