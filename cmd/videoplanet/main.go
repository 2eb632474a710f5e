package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/auth"
	"github.com/vlanet/videoplanet/internal/config"
	"github.com/vlanet/videoplanet/internal/events"
	"github.com/vlanet/videoplanet/internal/feedback"
	"github.com/vlanet/videoplanet/internal/logging"
	"github.com/vlanet/videoplanet/internal/notify"
	"github.com/vlanet/videoplanet/internal/outbox"
	"github.com/vlanet/videoplanet/internal/services"
	"github.com/vlanet/videoplanet/internal/session"
	"github.com/vlanet/videoplanet/internal/store"
	"github.com/vlanet/videoplanet/internal/users"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "videoplanet",
		Short: "VideoPlanet collaboration client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newLoginCommand(),
		newAgentCommand(),
		newProjectsCommand(),
		newFeedbackCommand(),
		newNotificationsCommand(),
		newSessionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "VideoPlanet API base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "Local SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("notify.poll_interval"), "Notification poll interval")
	cmd.PersistentFlags().Duration("sync-interval", defaults.GetDuration("session.sync_interval"), "Session playback sync interval")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "notify.poll_interval", "poll-interval")
	bindFlag(cmd, "session.sync_interval", "sync-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// app wires the client stack for one command invocation.
type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	manager  *auth.Manager
	client   *api.Client
	bus      *events.Bus
	cache    *users.Cache
	queue    *outbox.Queue
	notify   *notify.Aggregator
	auth     *services.AuthService
	projects *services.ProjectService
	plans    *services.VideoPlanningService
	invites  *services.InvitationService
	calendar *services.CalendarService
	feedback *services.FeedbackService
	sessions *services.SessionService

	closeDB func() error
}

func newApp() (*app, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := store.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	cache, err := users.NewCache(users.CacheConfig{Database: db, Clock: time.Now})
	if err != nil {
		return nil, err
	}

	// Login and refresh are unauthenticated calls, so the auth service runs
	// on a tokenless client and the token manager can depend on it without
	// a cycle.
	anonClient, err := api.NewClient(api.ClientConfig{
		BaseURL: appConfig.APIBaseURL,
		Timeout: appConfig.HTTPTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	authService := services.NewAuthService(anonClient, cache)

	manager, err := auth.NewManager(auth.ManagerConfig{
		Store:          auth.NewSQLiteTokenStore(db),
		Refresher:      authService,
		AccessTokenTTL: appConfig.AccessTokenTTL,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: appConfig.APIBaseURL,
		Tokens:  manager,
		Timeout: appConfig.HTTPTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	queue, err := outbox.NewQueue(outbox.QueueConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	invitationService := services.NewInvitationService(client)
	calendarService := services.NewCalendarService(client, bus)
	projectService := services.NewProjectService(services.ProjectServiceConfig{
		Client: client,
		Queue:  queue,
		Logger: logger,
	})
	planningService := services.NewVideoPlanningService(services.ProjectServiceConfig{
		Client: client,
		Queue:  queue,
		Logger: logger,
	})
	queue.RegisterReplayer(services.OutboxKindProject, projectService.Replay)
	queue.RegisterReplayer(services.OutboxKindVideoPlan, planningService.Replay)

	aggregator, err := notify.NewAggregator(notify.AggregatorConfig{
		Events:       calendarService,
		Invitations:  invitationService,
		Store:        notify.NewSQLiteListStore(db),
		PollInterval: appConfig.PollInterval,
		Logger:       logger,
		Toast: func(notification notify.Notification) {
			fmt.Printf("[%s] %s: %s\n", notification.Priority, notification.Title, notification.Message)
		},
		IDProvider: uuid.NewString,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      appConfig,
		logger:   logger,
		manager:  manager,
		client:   client,
		bus:      bus,
		cache:    cache,
		queue:    queue,
		notify:   aggregator,
		auth:     authService,
		projects: projectService,
		plans:    planningService,
		invites:  invitationService,
		calendar: calendarService,
		feedback: services.NewFeedbackService(client, cache),
		sessions: services.NewSessionService(client, cache),
		closeDB:  sqlDB.Close,
	}, nil
}

func (a *app) Close() {
	a.manager.Close()
	if a.closeDB != nil {
		a.closeDB() //nolint:errcheck
	}
	a.logger.Sync() //nolint:errcheck
}

func newLoginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the token set",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			tokens, err := clientApp.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := clientApp.manager.SetTokens(cmd.Context(), tokens); err != nil {
				return err
			}
			fmt.Println("logged in")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.MarkFlagRequired("email")    //nolint:errcheck
	cmd.MarkFlagRequired("password") //nolint:errcheck
	return cmd
}

func newAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the notification poller and outbox reconciler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			authFailed, unsubscribe := clientApp.manager.Subscribe(signalCtx)
			defer unsubscribe()

			go clientApp.notify.Run(signalCtx)

			reconcile := time.NewTicker(time.Minute)
			defer reconcile.Stop()

			if err := clientApp.queue.Reconcile(signalCtx); err != nil {
				clientApp.logger.Warn("outbox reconcile failed", zap.Error(err))
			}

			for {
				select {
				case <-signalCtx.Done():
					return nil
				case <-authFailed:
					return errors.New("authentication failed, run login again")
				case <-reconcile.C:
					if err := clientApp.queue.Reconcile(signalCtx); err != nil {
						clientApp.logger.Warn("outbox reconcile failed", zap.Error(err))
					}
				}
			}
		},
	}
}

func newProjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List and create projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			projects, err := clientApp.projects.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, project := range projects {
				fmt.Printf("%s\t%s\t%s\n", project.ID, project.SyncState, project.Name)
			}
			return nil
		},
	})

	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project, queueing it locally when the backend is unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			project, err := clientApp.projects.Create(cmd.Context(), services.CreateProjectRequest{
				Name:        name,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", project.ID, project.SyncState, project.Name)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Project name")
	create.Flags().StringVar(&description, "description", "", "Project description")
	create.MarkFlagRequired("name") //nolint:errcheck
	cmd.AddCommand(create)

	return cmd
}

func newFeedbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Inspect and add timeline feedback",
	}

	var videoID, category, search, order string
	var playhead float64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a video's timeline feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			entries, err := clientApp.feedback.List(cmd.Context(), videoID)
			if err != nil {
				return err
			}
			filter := feedback.Filter{Search: search, Order: feedback.SortOrder(order)}
			if category != "" {
				parsed, err := feedback.ParseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = parsed
			}
			entries = feedback.Apply(entries, filter)
			highlighted := make(map[string]bool)
			if playhead >= 0 {
				for _, entry := range feedback.Highlighted(entries, playhead) {
					highlighted[entry.ID] = true
				}
			}
			for _, entry := range entries {
				marker := " "
				if highlighted[entry.ID] {
					marker = "*"
				}
				fmt.Printf("%s %7.1fs [%s/%s] %s\n", marker, entry.Timestamp, entry.Category, entry.Priority, entry.Content)
			}
			return nil
		},
	}
	list.Flags().StringVar(&videoID, "video", "", "Video id")
	list.Flags().StringVar(&category, "category", "", "Filter by category")
	list.Flags().StringVar(&search, "search", "", "Filter by substring match on title or content")
	list.Flags().StringVar(&order, "order", string(feedback.SortAscending), "Sort order (asc, desc)")
	list.Flags().Float64Var(&playhead, "at", -1, "Mark entries within a second of this playhead")
	list.MarkFlagRequired("video") //nolint:errcheck
	cmd.AddCommand(list)

	var addVideoID, title, content, addCategory, priority string
	var timestamp float64
	add := &cobra.Command{
		Use:   "add",
		Short: "Add feedback anchored to a video timestamp",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			draft := feedback.NewDraft(addVideoID, timestamp)
			draft.Title = title
			draft.Content = content
			if addCategory != "" {
				parsed, err := feedback.ParseCategory(addCategory)
				if err != nil {
					return err
				}
				draft.Category = parsed
			}
			if priority != "" {
				draft.Priority = feedback.Priority(priority)
			}

			created, err := clientApp.feedback.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Printf("%s at %.1fs\n", created.ID, created.Timestamp)
			return nil
		},
	}
	add.Flags().StringVar(&addVideoID, "video", "", "Video id")
	add.Flags().Float64Var(&timestamp, "at", 0, "Timestamp in seconds")
	add.Flags().StringVar(&title, "title", "", "Feedback title")
	add.Flags().StringVar(&content, "content", "", "Feedback body")
	add.Flags().StringVar(&addCategory, "category", "", "Category (defaults to general)")
	add.Flags().StringVar(&priority, "priority", "", "Priority (defaults to medium)")
	add.MarkFlagRequired("video")   //nolint:errcheck
	add.MarkFlagRequired("content") //nolint:errcheck
	cmd.AddCommand(add)

	return cmd
}

func newNotificationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Poll once and print the notification list",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			clientApp.notify.Poll(cmd.Context())
			for _, notification := range clientApp.notify.List() {
				read := " "
				if notification.IsRead {
					read = "r"
				}
				fmt.Printf("%s [%s/%s] %s: %s\n", read, notification.Type, notification.Priority, notification.Title, notification.Message)
			}
			return nil
		},
	}
}

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Participate in a watch session",
	}

	var userID string
	watch := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Join a session and keep playback in sync until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientApp, err := newApp()
			if err != nil {
				return err
			}
			defer clientApp.Close()

			engine, err := session.NewEngine(session.EngineConfig{
				Syncer:       clientApp.sessions,
				Bus:          clientApp.bus,
				UserID:       userID,
				SyncInterval: clientApp.cfg.SyncInterval,
				Logger:       clientApp.logger,
			})
			if err != nil {
				return err
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := engine.Join(signalCtx, args[0]); err != nil {
				return err
			}

			changes, unsubscribe := clientApp.bus.Subscribe(signalCtx)
			defer unsubscribe()

			for {
				select {
				case <-signalCtx.Done():
					leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return engine.Leave(leaveCtx)
				case change := <-changes:
					if change.Entity == "playback" {
						state := engine.Playback()
						fmt.Printf("playback %.1fs playing=%t rate=%.2g by %s\n",
							state.CurrentTime, state.IsPlaying, state.PlaybackRate, state.UpdatedBy)
					}
				}
			}
		},
	}
	watch.Flags().StringVar(&userID, "user", "", "Local user id stamped on playback updates")
	watch.MarkFlagRequired("user") //nolint:errcheck
	cmd.AddCommand(watch)

	return cmd
}
