package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"
	"alcyxob/attachment-offload/internal/storage/local"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeConfigRepo is an in-memory RemoteConfigRepository.
type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[primitive.ObjectID]domain.RemoteConfig
	// skipDeactivate simulates a concurrent writer that left another config active.
	skipDeactivate bool
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: map[primitive.ObjectID]domain.RemoteConfig{}}
}

func (r *fakeConfigRepo) Create(_ context.Context, cfg *domain.RemoteConfig) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.Name == cfg.Name {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	cfg.ID = primitive.NewObjectID()
	cfg.CreatedAt = time.Now().UTC()
	r.configs[cfg.ID] = *cfg
	return cfg.ID, nil
}

func (r *fakeConfigRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *fakeConfigRepo) List(context.Context) ([]domain.RemoteConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RemoteConfig, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeConfigRepo) Update(_ context.Context, cfg *domain.RemoteConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.configs[cfg.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := *cfg
	updated.Active = existing.Active
	r.configs[cfg.ID] = updated
	return nil
}

func (r *fakeConfigRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.configs, id)
	return nil
}

func (r *fakeConfigRepo) GetActive(context.Context) (*domain.RemoteConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.Active {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeConfigRepo) CountActive(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.configs {
		if c.Active {
			n++
		}
	}
	return n, nil
}

func (r *fakeConfigRepo) SetActive(_ context.Context, id primitive.ObjectID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Active = active
	r.configs[id] = c
	return nil
}

func (r *fakeConfigRepo) DeactivateAllExcept(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipDeactivate {
		return nil
	}
	for k, c := range r.configs {
		if k != id {
			c.Active = false
			r.configs[k] = c
		}
	}
	return nil
}

func (r *fakeConfigRepo) activeIDs() []primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []primitive.ObjectID
	for id, c := range r.configs {
		if c.Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// fakeAttachmentRepo is an in-memory AttachmentRepository.
type fakeAttachmentRepo struct {
	mu        sync.Mutex
	items     map[primitive.ObjectID]domain.Attachment
	order     []primitive.ObjectID
	updateErr error
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{items: map[primitive.ObjectID]domain.Attachment{}}
}

func (r *fakeAttachmentRepo) Create(_ context.Context, att *domain.Attachment) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att.ID = primitive.NewObjectID()
	if att.Type == "" {
		att.Type = domain.AttachmentBinary
	}
	r.items[att.ID] = *att
	r.order = append(r.order, att.ID)
	return att.ID, nil
}

func (r *fakeAttachmentRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &att, nil
}

func (r *fakeAttachmentRepo) Update(_ context.Context, att *domain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.items[att.ID]; !ok {
		return repository.ErrNotFound
	}
	r.items[att.ID] = *att
	return nil
}

func (r *fakeAttachmentRepo) list(match func(domain.Attachment) bool) []domain.Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Attachment{}
	for _, id := range r.order {
		if att := r.items[id]; match(att) {
			out = append(out, att)
		}
	}
	return out
}

func (r *fakeAttachmentRepo) ListByMimetype(_ context.Context, mimetype string) ([]domain.Attachment, error) {
	return r.list(func(a domain.Attachment) bool { return a.Mimetype == mimetype }), nil
}

func (r *fakeAttachmentRepo) ListByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.Attachment, error) {
	want := map[primitive.ObjectID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return r.list(func(a domain.Attachment) bool { return want[a.ID] }), nil
}

func (r *fakeAttachmentRepo) Count(context.Context) (int64, error) {
	return int64(len(r.list(func(domain.Attachment) bool { return true }))), nil
}

func (r *fakeAttachmentRepo) CountRemote(context.Context) (int64, error) {
	return int64(len(r.list(func(a domain.Attachment) bool { return storage.IsRemote(a.StoragePointer) }))), nil
}

func (r *fakeAttachmentRepo) CountByPointer(_ context.Context, pointer string) (int64, error) {
	return int64(len(r.list(func(a domain.Attachment) bool { return a.StoragePointer == pointer }))), nil
}

func (r *fakeAttachmentRepo) get(t *testing.T, id primitive.ObjectID) domain.Attachment {
	t.Helper()
	att, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return *att
}

// fakeRemote is an in-memory RemoteStorage. Keys containing failOn are rejected.
type fakeRemote struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	types   map[string]string
	failOn  string
	putErr  error
	testErr error
}

func newFakeRemote(bucket string) *fakeRemote {
	return &fakeRemote{bucket: bucket, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeRemote) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return &storage.RemoteError{Op: "put", Key: key, Kind: storage.ErrTransientNetwork, Err: errors.New("connection reset")}
	}
	f.objects[key] = append([]byte(nil), data...)
	f.types[key] = contentType
	return nil
}

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, &storage.RemoteError{Op: "get", Key: key, Kind: storage.ErrRemoteNotFound, Err: errors.New("NoSuchKey")}
	}
	return data, nil
}

func (f *fakeRemote) Head(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeRemote) TestConnection(context.Context) error { return f.testErr }

func (f *fakeRemote) PublicURL(key string) string {
	return "https://" + f.bucket + ".s3.us-east-1.amazonaws.com/" + key
}

func (f *fakeRemote) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return f.PublicURL(key) + "?X-Amz-Signature=fake", nil
}

func (f *fakeRemote) Bucket() string { return f.bucket }

func (f *fakeRemote) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// harness wires the services against fakes and a temp filestore.
type harness struct {
	configs     *fakeConfigRepo
	attachments *fakeAttachmentRepo
	remote      *fakeRemote
	local       *local.Store
	registry    ConfigRegistry
	resolver    *storage.Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := local.New(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		configs:     newFakeConfigRepo(),
		attachments: newFakeAttachmentRepo(),
		remote:      newFakeRemote("attachments"),
		local:       store,
	}
	factory := func(_ context.Context, _ domain.RemoteConfig) (storage.RemoteStorage, error) {
		return h.remote, nil
	}
	h.registry = NewConfigRegistry(h.configs, factory)
	h.resolver = &storage.Resolver{Registry: h.registry, Factory: factory, Local: store}
	return h
}

func (h *harness) activate(t *testing.T) *domain.RemoteConfig {
	t.Helper()
	cfg, err := h.registry.Create(context.Background(), RemoteConfigInput{
		Name: "primary", AccessKey: "AKIA", SecretKey: "secret", Bucket: "attachments", Active: true,
	})
	require.NoError(t, err)
	return cfg
}

// seedLocal stores data in the filestore and inserts a matching record.
func (h *harness) seedLocal(t *testing.T, name, mimetype string, data []byte) domain.Attachment {
	t.Helper()
	att := domain.Attachment{Name: name, Mimetype: mimetype, Size: int64(len(data))}
	if len(data) > 0 {
		token, checksum, err := h.local.Write(context.Background(), data)
		require.NoError(t, err)
		att.StoragePointer = token
		att.Checksum = checksum
	}
	_, err := h.attachments.Create(context.Background(), &att)
	require.NoError(t, err)
	return att
}
