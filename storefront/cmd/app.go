package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/storefront/apiclient"
	"github.com/fjod/homeservices/storefront/booking"
	"github.com/fjod/homeservices/storefront/cart"
	"github.com/fjod/homeservices/storefront/catalog"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
	"github.com/fjod/homeservices/storefront/localstore"
	"github.com/fjod/homeservices/storefront/mirror"
	"github.com/fjod/homeservices/storefront/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// app is one storefront session: it lives for a single command.
type app struct {
	log        *logger.Logger
	storage    *localstore.SQLiteStore
	bus        *events.Bus
	cart       *cart.Store
	selections *session.Selections
	syncer     *mirror.Syncer
	catalog    *catalog.Client
	bookings   *booking.HTTPClient
	identity   tokenIdentity
}

func openApp(ctx context.Context, cfg *Config, logOut io.Writer) (*app, error) {
	log := logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.Level),
		Format:      cfg.Format,
		Output:      logOut,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	storage, err := localstore.Open(filepath.Join(cfg.DataDir, "storefront.db"))
	if err != nil {
		return nil, err
	}

	a := &app{
		log:      log,
		storage:  storage,
		bus:      events.NewBus(),
		identity: identityFromToken(cfg.Token),
	}
	a.cart = cart.NewStore(storage, a.bus, log)
	if err := a.cart.Load(ctx); err != nil {
		log.Warn(ctx, "starting with an empty cart", err)
	}
	a.selections = session.NewSelections(storage, log)
	if err := a.selections.Load(ctx); err != nil {
		log.Warn(ctx, "cached address unavailable", err)
	}
	a.selections.Watch(a.bus)

	newAPI := func(name string) *apiclient.Client {
		return apiclient.New(apiclient.Config{BaseURL: cfg.APIURL, Token: cfg.Token, Timeout: cfg.Timeout, Name: name})
	}
	a.catalog = catalog.NewClient(newAPI("catalog"))
	a.bookings = booking.NewHTTPClient(newAPI("bookings"))

	// without a signed-in customer the cart stays local
	if _, ok := a.identity.CurrentUser(ctx); ok {
		a.syncer = mirror.NewSyncer(a.cart, mirror.NewHTTPRemote(newAPI("cart-mirror")), a.bus, log, nil)
		a.syncer.Start()
		a.syncer.PullAll(ctx)
	}
	return a, nil
}

func (a *app) close() {
	if a.syncer != nil {
		a.syncer.Flush()
		a.syncer.Stop()
	}
	a.cart.Close()
	_ = a.storage.Close()
}

func (a *app) submitter() *booking.Submitter {
	return booking.NewSubmitter(booking.Deps{
		Identity:   a.identity,
		Cart:       a.cart,
		Selections: a.selections,
		Client:     a.bookings,
		Bus:        a.bus,
		Storage:    a.storage,
		Log:        a.log,
	})
}

// tokenIdentity reads the customer from the bearer token's claims. The
// gateway verifies the signature; the storefront only needs the claims.
type tokenIdentity struct {
	user domain.User
	ok   bool
}

func identityFromToken(token string) tokenIdentity {
	if token == "" {
		return tokenIdentity{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenIdentity{}
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return tokenIdentity{}
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return tokenIdentity{user: domain.User{ID: sub, Email: email, Name: name}, ok: true}
}

func (t tokenIdentity) CurrentUser(context.Context) (domain.User, bool) {
	return t.user, t.ok
}

type runner struct {
	cfg *Config
}

// run opens a session around fn and closes it once pending mirror calls
// have finished.
func (r *runner) run(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), r.cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
