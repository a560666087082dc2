// campusctl is a small command-line consumer of the CampusLink client
// library: it drives the full session lifecycle and the feed pipeline from
// a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/communities"
	"github.com/campuslink/go-campus-client/feed"
	"github.com/campuslink/go-campus-client/internal/config"
	"github.com/campuslink/go-campus-client/mutate"
	"github.com/campuslink/go-campus-client/posts"
	"github.com/campuslink/go-campus-client/session"
	"github.com/campuslink/go-campus-client/session/credstore"
)

const usage = `usage: campusctl <command> [flags]

commands:
  login    -email <email> -password <password>
  whoami
  feed
  communities [-search <query>]
  join     <community-id>
  leave    <community-id>
  logout
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "campusctl: %s\n", err)
		os.Exit(1)
	}
}

type app struct {
	log         zerolog.Logger
	sessions    *session.Manager
	communities *communities.Service
	posts       *posts.Service
	feed        *feed.Aggregator
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(logLevel())

	a := newApp(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	command, rest := args[0], args[1:]
	if command != "login" {
		if err := a.sessions.Bootstrap(ctx); err != nil {
			return err
		}
	}

	switch command {
	case "login":
		return a.login(ctx, rest)
	case "whoami":
		return a.whoami()
	case "feed":
		return a.showFeed(ctx)
	case "communities":
		return a.listCommunities(ctx, rest)
	case "join":
		return a.membership(ctx, rest, a.communities.Join)
	case "leave":
		return a.membership(ctx, rest, a.communities.Leave)
	case "logout":
		return a.sessions.Logout(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(cfg config.Config, logger zerolog.Logger) *app {
	client := api.New(cfg.GetBaseURL(),
		api.WithTimeout(cfg.GetRequestTimeout()),
		api.WithLogger(logger),
	)
	store := credstore.NewFileStore(cfg.GetCredentialsPath())
	sessions := session.NewManager(client, store, session.WithLogger(logger))
	client.SetCredentials(sessions)

	coord := mutate.NewCoordinator(logger)
	comms := communities.NewService(client, coord, logger)
	postSvc := posts.NewService(client, coord, sessions, logger)

	return &app{
		log:         logger,
		sessions:    sessions,
		communities: comms,
		posts:       postSvc,
		feed: feed.NewAggregator(comms, postSvc, logger,
			feed.WithPostsPerSource(cfg.GetFeedPostsPerSource()),
			feed.WithDisplayCap(cfg.GetFeedDisplayCap()),
			feed.WithFanOutLimit(cfg.GetFeedFanOutLimit()),
		),
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "student email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	figure.NewFigure("CampusLink", "cybermedium", true).Print()
	fmt.Println()

	user, err := a.sessions.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", user.DisplayName(), user.Email)
	return nil
}

func (a *app) whoami() error {
	user := a.sessions.User()
	if !a.sessions.IsAuthenticated() || user == nil {
		return errors.New("not signed in, run: campusctl login")
	}
	fmt.Printf("%s (%s)\n", user.DisplayName(), user.Email)
	return nil
}

func (a *app) showFeed(ctx context.Context) error {
	items, err := a.feed.Home(ctx)
	if err != nil {
		if errors.Is(err, feed.ErrNoFollowedContent) {
			fmt.Println("nothing here yet: join some communities to build your feed")
			return nil
		}
		return err
	}

	for _, p := range items {
		fmt.Printf("%s  [%+d] %s\n", p.CreatedAt.Local().Format("Jan 02 15:04"), p.Upvotes-p.Downvotes, p.Title)
	}
	return nil
}

func (a *app) listCommunities(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("communities", flag.ExitOnError)
	search := fs.String("search", "", "filter by search query")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []communities.ListOption
	if *search != "" {
		opts = append(opts, communities.WithSearch(*search))
	}

	page, err := a.communities.List(ctx, 1, 50, opts...)
	if err != nil {
		return err
	}

	for _, c := range page.Items {
		marker := " "
		if c.IsMember {
			marker = "*"
		}
		fmt.Printf("%s %-24s %5d members  %s\n", marker, c.Name, c.MemberCount, c.ID)
	}
	return nil
}

func (a *app) membership(ctx context.Context, args []string, op func(context.Context, string) error) error {
	if len(args) != 1 {
		return errors.New("expected exactly one community id")
	}
	// Membership mutations need a snapshot to act on.
	if _, err := a.communities.List(ctx, 1, 50); err != nil {
		return err
	}
	return op(ctx, args[0])
}

func logLevel() zerolog.Level {
	if os.Getenv("CAMPUSLINK_DEBUG") != "" {
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}
