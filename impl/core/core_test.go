package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"mailgate/entity"
)

// memStore mimics the durable store's atomic guarantees: the unique email
// key and the conditional use increment both execute under one lock, the
// way a single SQL transaction would.
type memStore struct {
	mu         sync.Mutex
	tokens     map[string]*entity.Token
	users      map[string]*entity.User
	tokenReads int
	userReads  int
}

func newMemStore() *memStore {
	return &memStore{
		tokens: make(map[string]*entity.Token),
		users:  make(map[string]*entity.User),
	}
}

func (m *memStore) addToken(id string, maxUses int, status entity.TokenStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = &entity.Token{
		ID:        id,
		MaxUses:   maxUses,
		Status:    status,
		CreatedBy: "root",
		CreatedAt: time.Now().UTC(),
	}
}

func (m *memStore) CreateToken(_ context.Context, token *entity.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *memStore) GetToken(_ context.Context, id string) (*entity.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenReads++
	token, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *token
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userReads++
	user, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (m *memStore) RegisterUser(_ context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return entity.ErrUserExists
	}
	token, ok := m.tokens[user.TokenID]
	if !ok {
		return entity.ErrTokenUnknown
	}
	if token.Status != entity.TokenActive {
		return entity.ErrTokenDisabled
	}
	if token.Used >= token.MaxUses {
		return entity.ErrTokenExhausted
	}
	cp := *user
	m.users[user.Email] = &cp
	token.Used++
	now := user.CreatedAt
	token.LastUse = &now
	return nil
}

func (m *memStore) userCountForToken(tokenID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.TokenID == tokenID {
			n++
		}
	}
	return n
}

func (m *memStore) tokenUsed(tokenID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[tokenID].Used
}

type cacheItem struct {
	raw json.RawMessage
	ttl time.Duration
}

type memCache struct {
	mu   sync.Mutex
	data map[string]cacheItem
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]cacheItem)}
}

func (c *memCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.data[key]
	return item.raw, ok
}

func (c *memCache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheItem{raw: raw, ttl: ttl}
}

func (c *memCache) seed(key string, value any) {
	c.Set(context.Background(), key, value, time.Minute)
}

func (c *memCache) ttlOf(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.data[key]
	return item.ttl, ok
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*entity.AuditEntry
}

func (r *memRecorder) Record(_ context.Context, e *entity.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memRecorder) results() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Result)
	}
	return out
}

func testConfig() Config {
	return Config{
		Domain:           "example.org",
		UserTTL:          24 * time.Hour,
		UserCheckTTL:     time.Hour,
		UserNegativeTTL:  5 * time.Minute,
		TokenSnapshotTTL: 5 * time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCore(store *memStore, cache *memCache, rec *memRecorder) *Core {
	var c Cache
	if cache != nil {
		c = cache
	}
	var r Recorder
	if rec != nil {
		r = rec
	}
	return New(store, c, r, testConfig(), discardLogger())
}

func TestRegisterAccountLocalPartGate(t *testing.T) {
	rejected := []string{"A", "a", "a b", strings.Repeat("x", 33), ""}
	for _, local := range rejected {
		store := newMemStore()
		store.addToken("tok", 5, entity.TokenActive)
		c := newTestCore(store, nil, nil)

		_, err := c.RegisterAccount(context.Background(), "tok", local, "")
		if !errors.Is(err, entity.ErrInvalidLocalPart) {
			t.Errorf("local %q: err = %v, want ErrInvalidLocalPart", local, err)
		}
		if store.tokenUsed("tok") != 0 {
			t.Errorf("local %q: token consumed by rejected input", local)
		}
	}

	accepted := []string{"ab", "a.b-c_9"}
	for _, local := range accepted {
		store := newMemStore()
		store.addToken("tok", 5, entity.TokenActive)
		c := newTestCore(store, nil, nil)

		user, err := c.RegisterAccount(context.Background(), "tok", local, "")
		if err != nil {
			t.Errorf("local %q: unexpected err %v", local, err)
			continue
		}
		if user.Email != local+"@example.org" {
			t.Errorf("local %q: email = %q", local, user.Email)
		}
	}
}

func TestRegisterAccountTokenStates(t *testing.T) {
	store := newMemStore()
	store.addToken("off", 5, entity.TokenDisabled)
	store.addToken("full", 1, entity.TokenActive)
	store.tokens["full"].Used = 1
	c := newTestCore(store, nil, nil)

	if _, err := c.RegisterAccount(context.Background(), "missing", "alice", ""); !errors.Is(err, entity.ErrTokenUnknown) {
		t.Errorf("unknown token: err = %v", err)
	}
	if _, err := c.RegisterAccount(context.Background(), "off", "alice", ""); !errors.Is(err, entity.ErrTokenDisabled) {
		t.Errorf("disabled token: err = %v", err)
	}
	if _, err := c.RegisterAccount(context.Background(), "full", "alice", ""); !errors.Is(err, entity.ErrTokenExhausted) {
		t.Errorf("exhausted token: err = %v", err)
	}
}

func TestRegisterAccountEndToEnd(t *testing.T) {
	store := newMemStore()
	cache := newMemCache()
	rec := &memRecorder{}
	c := newTestCore(store, cache, rec)

	token, err := c.CreateToken(context.Background(), 1, "admin")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	user, err := c.RegisterAccount(context.Background(), token.ID, "alice", "203.0.113.9")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "alice@example.org" {
		t.Errorf("email = %q", user.Email)
	}
	if user.StoragePrefix != "alice/" {
		t.Errorf("storage prefix = %q", user.StoragePrefix)
	}

	if _, err = c.RegisterAccount(context.Background(), token.ID, "bob", ""); !errors.Is(err, entity.ErrTokenExhausted) {
		t.Fatalf("second use: err = %v, want ErrTokenExhausted", err)
	}

	snap, err := c.CheckUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("check user: %v", err)
	}
	if !snap.Exists || snap.Status == nil || *snap.Status != entity.UserStatusActive {
		t.Errorf("check user = %+v", snap)
	}

	results := rec.results()
	if len(results) != 2 || results[0] != "ok" || results[1] != "token_exhausted" {
		t.Errorf("audit results = %v", results)
	}
	if rec.entries[0].Actor != "alice@example.org" || rec.entries[0].IP != "203.0.113.9" {
		t.Errorf("audit entry = %+v", rec.entries[0])
	}
}

func TestConcurrentRegistrationsRespectMaxUses(t *testing.T) {
	const attempts = 16
	store := newMemStore()
	store.addToken("tok", 1, entity.TokenActive)
	c := newTestCore(store, newMemCache(), &memRecorder{})

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			local := "user" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			_, errs[n] = c.RegisterAccount(context.Background(), "tok", local, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, entity.ErrTokenExhausted):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	if used := store.tokenUsed("tok"); used != 1 {
		t.Errorf("token used = %d, want 1", used)
	}
	if n := store.userCountForToken("tok"); n != store.tokenUsed("tok") {
		t.Errorf("users referencing token = %d, used = %d", n, store.tokenUsed("tok"))
	}
}

func TestConcurrentRegistrationsSameEmail(t *testing.T) {
	const attempts = 8
	store := newMemStore()
	c := newTestCore(store, newMemCache(), &memRecorder{})
	for i := 0; i < attempts; i++ {
		store.addToken("tok"+string(rune('a'+i)), 1, entity.TokenActive)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = c.RegisterAccount(context.Background(), "tok"+string(rune('a'+n)), "alice", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, entity.ErrUserExists):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.users) != 1 {
		t.Errorf("user rows = %d, want 1", len(store.users))
	}
}

func TestCheckUserPopulatesCache(t *testing.T) {
	store := newMemStore()
	store.users["alice@example.org"] = &entity.User{
		Email: "alice@example.org", Status: entity.UserStatusActive,
	}
	cache := newMemCache()
	c := newTestCore(store, cache, nil)

	first, err := c.CheckUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if store.userReads != 1 {
		t.Fatalf("store reads after miss = %d, want 1", store.userReads)
	}

	second, err := c.CheckUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if store.userReads != 1 {
		t.Errorf("store reads after cache hit = %d, want 1", store.userReads)
	}
	if first.Exists != second.Exists || *first.Status != *second.Status {
		t.Errorf("cached answer diverged: %+v vs %+v", first, second)
	}
}

func TestCheckUserNegativeCachedShorter(t *testing.T) {
	store := newMemStore()
	store.users["bob@example.org"] = &entity.User{
		Email: "bob@example.org", Status: entity.UserStatusActive,
	}
	cache := newMemCache()
	c := newTestCore(store, cache, nil)

	if _, err := c.CheckUser(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CheckUser(context.Background(), "nobody"); err != nil {
		t.Fatal(err)
	}

	positive, ok := cache.ttlOf("user:bob@example.org")
	if !ok {
		t.Fatal("positive result not cached")
	}
	negative, ok := cache.ttlOf("user:nobody@example.org")
	if !ok {
		t.Fatal("negative result not cached")
	}
	if negative >= positive {
		t.Errorf("negative ttl %v should be shorter than positive ttl %v", negative, positive)
	}
}

func TestStaleUsableSnapshotNeverAuthorizes(t *testing.T) {
	store := newMemStore()
	store.addToken("tok", 5, entity.TokenDisabled)
	cache := newMemCache()
	// stale snapshot from before the disable still says usable
	cache.seed("token:tok", &entity.TokenSnapshot{Used: 0, MaxUses: 5, Status: entity.TokenActive})
	c := newTestCore(store, cache, nil)

	_, err := c.RegisterAccount(context.Background(), "tok", "alice", "")
	if !errors.Is(err, entity.ErrTokenDisabled) {
		t.Errorf("err = %v, want ErrTokenDisabled", err)
	}
	if store.tokenReads == 0 {
		t.Error("mutating path never consulted the store")
	}
}

func TestRegisterFastDeniesFromCache(t *testing.T) {
	store := newMemStore()
	store.addToken("tok", 5, entity.TokenActive)
	cache := newMemCache()
	cache.seed("token:tok", &entity.TokenSnapshot{Used: 5, MaxUses: 5, Status: entity.TokenActive})
	c := newTestCore(store, cache, &memRecorder{})

	_, err := c.RegisterAccount(context.Background(), "tok", "alice", "")
	if !errors.Is(err, entity.ErrTokenExhausted) {
		t.Fatalf("err = %v, want ErrTokenExhausted", err)
	}
	if store.tokenReads != 0 {
		t.Errorf("store consulted %d times; an exhausted snapshot may deny on its own", store.tokenReads)
	}
}

func TestValidateTokenFastDeniesFromCache(t *testing.T) {
	store := newMemStore()
	cache := newMemCache()
	cache.seed("token:tok", &entity.TokenSnapshot{Used: 5, MaxUses: 5, Status: entity.TokenActive})
	c := newTestCore(store, cache, nil)

	state, err := c.ValidateToken(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if state != entity.TokenExhausted {
		t.Errorf("state = %v, want exhausted", state)
	}
	if store.tokenReads != 0 {
		t.Errorf("store consulted %d times for a monotone denial", store.tokenReads)
	}
}

func TestValidateTokenUsableCacheStillReadsStore(t *testing.T) {
	store := newMemStore()
	store.addToken("tok", 5, entity.TokenActive)
	cache := newMemCache()
	cache.seed("token:tok", &entity.TokenSnapshot{Used: 0, MaxUses: 5, Status: entity.TokenActive})
	c := newTestCore(store, cache, nil)

	state, err := c.ValidateToken(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if state != entity.TokenUsable {
		t.Errorf("state = %v", state)
	}
	if store.tokenReads != 1 {
		t.Errorf("store reads = %d, want 1; a cached usable is never the last word", store.tokenReads)
	}
}

func TestValidateTokenUnknown(t *testing.T) {
	c := newTestCore(newMemStore(), nil, nil)
	state, err := c.ValidateToken(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if state != entity.TokenUnknown {
		t.Errorf("state = %v, want unknown", state)
	}
}

func TestCreateTokenDefaults(t *testing.T) {
	store := newMemStore()
	c := newTestCore(store, nil, nil)

	token, err := c.CreateToken(context.Background(), 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if token.MaxUses != 5 {
		t.Errorf("max uses = %d, want default 5", token.MaxUses)
	}
	if token.CreatedBy != "root" {
		t.Errorf("created by = %q, want root", token.CreatedBy)
	}
	if token.Status != entity.TokenActive || token.Used != 0 {
		t.Errorf("fresh token = %+v", token)
	}
}

func TestRegistrationSurvivesCacheAndAuditAbsence(t *testing.T) {
	// nil cache and nil recorder stand in for both collaborators failing
	store := newMemStore()
	store.addToken("tok", 1, entity.TokenActive)
	c := newTestCore(store, nil, nil)

	user, err := c.RegisterAccount(context.Background(), "tok", "alice", "")
	if err != nil {
		t.Fatalf("register without cache/audit: %v", err)
	}
	if user.Email != "alice@example.org" {
		t.Errorf("email = %q", user.Email)
	}
}
