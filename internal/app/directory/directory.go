/*
Package directory implements the local user directory: user records with their chat
references, credential checks and bearer-token resolution.

The whole directory lives in memory and is loaded once from a storage.Store when the
Directory is opened. Every mutation builds the next state, writes the complete document
and only then makes the new state visible, all under one lock, so the store and the
in-memory directory never diverge and concurrent requests cannot lose updates.
*/
package directory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	slices2 "tideland.dev/go/slices"

	"chatdir/internal/app/storage"
	"chatdir/internal/app/user"
	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/errs"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/randx"
)

// maxIDAttempts bounds how many generated ids are tried before Create gives up.
const maxIDAttempts = 8

// Session is the result of a successful login.
type Session struct {
	Token string    `json:"token"`
	User  user.View `json:"user"`
}

// Directory is the in-memory user directory backed by a Store.
type Directory struct {
	// order lists user ids in insertion order.
	order []string

	// users maps user ids to their records. Records are never modified in place.
	users map[string]*user.Record

	// retired holds ids deleted during this process's lifetime so they are never handed out again.
	retired map[string]struct{}

	store  storage.Store
	tokens token.Issuer
	newID  func() string

	// mu serializes mutations and guards reads of order and users.
	mu sync.RWMutex

	// structured logger with Directory context.
	logger zerolog.Logger
}

// Option customizes a Directory.
type Option func(*Directory)

// WithTokenIssuer sets how bearer tokens are issued and resolved. Defaults to token.IDIssuer.
func WithTokenIssuer(issuer token.Issuer) Option {
	return func(d *Directory) {
		d.tokens = issuer
	}
}

// WithIDGenerator replaces the user id generator. Defaults to randx.UserID.
func WithIDGenerator(fn func() string) Option {
	return func(d *Directory) {
		d.newID = fn
	}
}

// Open loads the directory from store. A missing document yields an empty directory and
// so does a malformed one, which is only logged. Any other load failure is returned.
func Open(ctx context.Context, store storage.Store, opts ...Option) (*Directory, error) {
	d := &Directory{
		order:   []string{},
		users:   make(map[string]*user.Record),
		retired: make(map[string]struct{}),
		store:   store,
		tokens:  token.IDIssuer{},
		newID:   randx.UserID,
		logger:  logx.Component("Directory"),
	}

	for _, opt := range opts {
		opt(d)
	}

	data, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory from %s: %w", store.Describe(), err)
	}

	if data == nil {
		d.logger.Info().Str("store", store.Describe()).Msg("No directory document found, starting empty.")
		return d, nil
	}

	order, users, err := decodeDocument(data)
	if err != nil {
		d.logger.Warn().Err(err).Str("store", store.Describe()).Int("bytes", len(data)).
			Msg("Directory document is malformed, starting empty.")
		return d, nil
	}

	d.order, d.users = order, users
	d.logger.Info().Str("store", store.Describe()).Int("users", len(order)).Msg("Directory loaded.")

	return d, nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.order)
}

// List returns every user in insertion order.
func (d *Directory) List() []user.View {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]user.View, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.users[id].View())
	}
	return out
}

// Create adds a user with a freshly generated id and no chat references.
func (d *Directory) Create(ctx context.Context, name, password string) (user.View, *errs.CustomError) {
	if name == "" {
		return user.View{}, errs.NewError(errs.ErrInvalidName)
	}
	if password == "" {
		return user.View{}, errs.NewError(errs.ErrInvalidPassword)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, customErr := d.freshID()
	if customErr != nil {
		return user.View{}, customErr
	}

	rec := &user.Record{ID: id, Name: name, Password: password, ChatRefs: []string{}}

	users := maps.Clone(d.users)
	users[id] = rec
	order := append(slices.Clone(d.order), id)

	if customErr := d.commit(ctx, order, users); customErr != nil {
		return user.View{}, customErr
	}

	d.logger.Info().Str("user_id", id).Msg("User created.")
	return rec.View(), nil
}

// Get returns the user with the given id.
func (d *Directory) Get(id string) (user.View, *errs.CustomError) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return user.View{}, errs.NewError(errs.ErrUserNotFound)
	}
	return rec.View(), nil
}

// Update replaces the user's name when name is non-nil. The document is rewritten either way.
func (d *Directory) Update(ctx context.Context, id string, name *string) (user.View, *errs.CustomError) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.users[id]
	if !ok {
		return user.View{}, errs.NewError(errs.ErrUserNotFound)
	}

	next := rec.Clone()
	if name != nil {
		next.Name = *name
	}

	users := maps.Clone(d.users)
	users[id] = next

	if customErr := d.commit(ctx, d.order, users); customErr != nil {
		return user.View{}, customErr
	}

	return next.View(), nil
}

// Delete removes the user. Its id is never reused by this process.
func (d *Directory) Delete(ctx context.Context, id string) *errs.CustomError {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return errs.NewError(errs.ErrUserNotFound)
	}

	users := maps.Clone(d.users)
	delete(users, id)
	order := slices.DeleteFunc(slices.Clone(d.order), func(v string) bool { return v == id })

	if customErr := d.commit(ctx, order, users); customErr != nil {
		return customErr
	}

	d.retired[id] = struct{}{}
	d.logger.Info().Str("user_id", id).Msg("User deleted.")
	return nil
}

// Authenticate finds the first user, in insertion order, whose name equals name ignoring
// case and whose password equals password exactly, and issues a bearer token for it.
func (d *Directory) Authenticate(name, password string) (Session, *errs.CustomError) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		rec := d.users[id]
		if !strings.EqualFold(rec.Name, name) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(rec.Password), []byte(password)) != 1 {
			continue
		}

		tok, err := d.tokens.Issue(id)
		if err != nil {
			return Session{}, errs.NewError(errs.ErrUnknown, err)
		}
		return Session{Token: tok, User: rec.View()}, nil
	}

	return Session{}, errs.NewError(errs.ErrInvalidCredentials)
}

// ResolveToken returns the user designated by a bearer token.
func (d *Directory) ResolveToken(tokenString string) (user.View, *errs.CustomError) {
	id, err := d.tokens.Subject(tokenString)
	if err != nil {
		return user.View{}, errs.NewError(errs.ErrUnauthorized)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return user.View{}, errs.NewError(errs.ErrUnauthorized)
	}
	return rec.View(), nil
}

// ChatRefs returns the chat references of the user.
func (d *Directory) ChatRefs(id string) ([]string, *errs.CustomError) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return nil, errs.NewError(errs.ErrUserNotFound)
	}
	return rec.ChatRefsCopy(), nil
}

// AddChatRef records chatID for the user unless already present. The document is
// rewritten even when nothing changed.
func (d *Directory) AddChatRef(ctx context.Context, id, chatID string) (user.View, *errs.CustomError) {
	if chatID == "" {
		return user.View{}, errs.NewError(errs.ErrInvalidChatID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.users[id]
	if !ok {
		return user.View{}, errs.NewError(errs.ErrUserNotFound)
	}

	next := rec.Clone()
	if !next.HasChatRef(chatID) {
		next.ChatRefs = append(next.ChatRefs, chatID)
	}

	users := maps.Clone(d.users)
	users[id] = next

	if customErr := d.commit(ctx, d.order, users); customErr != nil {
		return user.View{}, customErr
	}

	return next.View(), nil
}

// AllChatRefs returns the sorted union of every user's chat references.
func (d *Directory) AllChatRefs() []string {
	d.mu.RLock()
	all := []string{}
	for _, id := range d.order {
		all = append(all, d.users[id].ChatRefs...)
	}
	d.mu.RUnlock()

	unique := slices2.Unique(all)
	if unique == nil {
		return []string{}
	}
	slices.Sort(unique)
	return unique
}

// freshID returns an id that is neither in use nor retired. Caller holds mu.
func (d *Directory) freshID() (string, *errs.CustomError) {
	for range maxIDAttempts {
		id := d.newID()
		if id == "" {
			continue
		}
		if _, taken := d.users[id]; taken {
			continue
		}
		if _, retired := d.retired[id]; retired {
			continue
		}
		return id, nil
	}

	d.logger.Error().Int("attempts", maxIDAttempts).Msg("Could not generate an unused user id.")
	return "", errs.NewError(errs.ErrUnknown)
}

// commit persists the next state and installs it. On failure the current state is kept.
// Caller holds mu for writing.
func (d *Directory) commit(ctx context.Context, order []string, users map[string]*user.Record) *errs.CustomError {
	doc, err := encodeDocument(order, users)
	if err != nil {
		return errs.NewError(errs.ErrStorageFailed, err)
	}

	if err := d.store.Save(ctx, doc); err != nil {
		d.logger.Error().Err(err).Str("store", d.store.Describe()).Msg("Failed to persist directory.")
		return errs.NewError(errs.ErrStorageFailed, err)
	}

	d.order, d.users = order, users
	return nil
}
