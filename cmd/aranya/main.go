package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/aranyahq/aranya-go/api"
	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/internal/config"
	"github.com/aranyahq/aranya-go/notify"
	"github.com/aranyahq/aranya-go/resources"
	"github.com/aranyahq/aranya-go/session"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const usage = `Usage: aranya <command> [arguments]

Commands:
  login      sign in and store the session
  logout     clear the stored session
  register   create an account
  whoami     show the signed-in user
  journal    list or add journal entries
  hubs       list knowledge hubs
  articles   list articles, optionally filtered
  questions  list discovery questions
`

type app struct {
	manager   *session.Manager
	journal   *resources.Journal
	knowledge *resources.Knowledge
	discovery *resources.Discovery
}

func main() {
	log := newLogger()
	if err := run(log, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newLogger() zerolog.Logger {
	cfg, err := config.Load()
	level := zerolog.InfoLevel
	if err == nil {
		if parsed, parseErr := zerolog.ParseLevel(cfg.Client.LogLevel); parseErr == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func run(log zerolog.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("a command is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	creds, err := credentials.NewFileStore(cfg.Client.CredentialsFile)
	if err != nil {
		return fmt.Errorf("credentials.NewFileStore: %w", err)
	}

	notifier := notify.NewLogNotifier(log)
	client, err := api.New(cfg.Client.BaseURL, creds,
		api.WithNotifier(notifier),
		api.WithLogger(log),
		api.WithTimeout(cfg.Client.Timeout),
	)
	if err != nil {
		return fmt.Errorf("api.New: %w", err)
	}

	manager, err := session.NewManager(client, creds,
		session.WithNotifier(notifier),
		session.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}

	a := &app{
		manager:   manager,
		journal:   resources.NewJournal(client),
		knowledge: resources.NewKnowledge(client),
		discovery: resources.NewDiscovery(client),
	}

	ctx := context.Background()
	command, rest := args[0], args[1:]
	switch command {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.manager.Logout(ctx)
	case "register":
		return a.register(ctx, rest)
	case "whoami":
		return a.whoami(ctx)
	case "journal":
		return a.journalCmd(ctx, rest)
	case "hubs":
		return a.hubs(ctx)
	case "articles":
		return a.articles(ctx, rest)
	case "questions":
		return a.questions(ctx)
	case "help", "-h", "--help":
		displayAppname("aranya")
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username or email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	profile, err := a.manager.Login(ctx, *username, password)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", profile.Label())
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	params := session.RegisterParams{}
	fs.StringVar(&params.Username, "username", "", "username")
	fs.StringVar(&params.Email, "email", "", "email address")
	fs.StringVar(&params.FirstName, "first-name", "", "first name")
	fs.StringVar(&params.LastName, "last-name", "", "last name")
	fs.StringVar(&params.Gender, "gender", "", "gender")
	fs.IntVar(&params.YearOfBirth, "year-of-birth", 0, "year of birth")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	params.Password = password
	params.ConfirmPassword = confirm

	message, err := a.manager.Register(ctx, params)
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return err
	}
	state := a.manager.Current()
	if !state.IsAuthenticated() {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("%s <%s>\n", state.User.Label(), state.User.Email)
	return nil
}

func (a *app) journalCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("journal requires a subcommand: list or add")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("journal list", flag.ExitOnError)
		search := fs.String("search", "", "filter by date (YYYY-MM-DD) or content")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		entries, err := a.journal.List(ctx, *search)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No journal entries")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("#%d [%s] %s\n  %s\n", entry.ID, entry.Mood, entry.CreatedAt, entry.Content)
		}
		return nil
	case "add":
		fs := flag.NewFlagSet("journal add", flag.ExitOnError)
		mood := fs.String("mood", "", "mood label")
		content := fs.String("content", "", "entry text")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *content == "" {
			return fmt.Errorf("-content is required")
		}
		entry, err := a.journal.Create(ctx, *mood, *content)
		if err != nil {
			return err
		}
		fmt.Printf("Created entry #%d\n", entry.ID)
		return nil
	default:
		return fmt.Errorf("unknown journal subcommand %q", args[0])
	}
}

func (a *app) hubs(ctx context.Context) error {
	hubs, err := a.knowledge.Hubs(ctx)
	if err != nil {
		return err
	}
	for _, hub := range hubs {
		fmt.Printf("#%d %s\n  %s\n", hub.ID, hub.Name, hub.Description)
	}
	return nil
}

func (a *app) articles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("articles", flag.ExitOnError)
	hubID := fs.String("hub", "", "knowledge hub ID")
	search := fs.String("search", "", "title search")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := resources.ArticleFilter{Search: *search}
	if *hubID != "" {
		parsed, err := strconv.ParseInt(*hubID, 10, 64)
		if err != nil {
			return fmt.Errorf("-hub must be numeric: %w", err)
		}
		filter.HubID = parsed
	}

	articles, err := a.knowledge.Articles(ctx, filter)
	if err != nil {
		return err
	}
	for _, article := range articles {
		fmt.Printf("#%d (hub %d) %s\n", article.ID, article.HubID, article.Title)
	}
	return nil
}

func (a *app) questions(ctx context.Context) error {
	questions, err := a.discovery.Questions(ctx)
	if err != nil {
		return err
	}
	for _, question := range questions {
		fmt.Printf("#%d %s\n", question.ID, question.Question)
		for i, option := range question.Options {
			fmt.Printf("   %d. %s\n", i+1, option)
		}
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
