package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/okrent/feedspool/config"
	"github.com/okrent/feedspool/event"
	"github.com/okrent/feedspool/model"
	"github.com/okrent/feedspool/opml"
	"github.com/okrent/feedspool/render"
	"github.com/okrent/feedspool/spool"
	"github.com/okrent/feedspool/store"
	"github.com/okrent/feedspool/update"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := &cli.App{
		Name:    "feedspool",
		Usage:   "A scriptable RSS/Atom feed reader",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Value:   getDefaultDBPath(),
				Usage:   "Database file path",
				EnvVars: []string{"FEEDSPOOL_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   getDefaultConfigPath(),
				Usage:   "Config file path",
				EnvVars: []string{"FEEDSPOOL_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a feed and fetch it once",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "title",
						Aliases: []string{"t"},
						Usage:   "Feed title (default: taken from the feed)",
					},
					&cli.StringFlag{
						Name:  "username",
						Usage: "HTTP basic auth username",
					},
					&cli.StringFlag{
						Name:  "password",
						Usage: "HTTP basic auth password",
					},
				},
				Action: addFeed,
			},
			{
				Name:  "feeds",
				Usage: "List feeds with unread counters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Only feeds whose title contains this text",
					},
				},
				Action: listFeeds,
			},
			{
				Name:  "update",
				Usage: "Update feeds (fetch new stories)",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:    "feed-id",
						Aliases: []string{"f"},
						Usage:   "Update a specific feed by ID (default: all)",
					},
					&cli.BoolFlag{
						Name:  "scheduled",
						Usage: "Run as a quiet background update (failures don't disable feeds)",
					},
				},
				Action: updateFeeds,
			},
			{
				Name:      "list",
				Usage:     "List the stories a feed shows",
				ArgsUsage: "<feed-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "filter",
						Usage: "Only stories whose title contains this text",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of stories to return",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Value:   0,
						Usage:   "Offset for pagination",
					},
				},
				Action: listStories,
			},
			{
				Name:      "show",
				Usage:     "Show one story with its links",
				ArgsUsage: "<story-id>",
				Action:    showStory,
			},
			{
				Name:      "mark-read",
				Usage:     "Mark stories as read",
				ArgsUsage: "<story-id>...",
				Action:    markRead(true),
			},
			{
				Name:      "mark-unread",
				Usage:     "Mark stories as unread",
				ArgsUsage: "<story-id>...",
				Action:    markRead(false),
			},
			{
				Name:      "mark-all-read",
				Usage:     "Mark every story a feed shows as read",
				ArgsUsage: "<feed-id>",
				Action:    markAllRead,
			},
			{
				Name:      "star",
				Usage:     "Star stories",
				ArgsUsage: "<story-id>...",
				Action:    markStarred(true),
			},
			{
				Name:      "unstar",
				Usage:     "Unstar stories",
				ArgsUsage: "<story-id>...",
				Action:    markStarred(false),
			},
			{
				Name:      "unstar-all",
				Usage:     "Unstar every story a feed shows",
				ArgsUsage: "<feed-id>",
				Action:    unstarAll,
			},
			{
				Name:      "delete-story",
				Usage:     "Hide a story permanently",
				ArgsUsage: "<story-id>",
				Action:    deleteStory,
			},
			{
				Name:      "remove",
				Usage:     "Remove a feed and its stories",
				ArgsUsage: "<feed-id>",
				Action:    removeFeed,
			},
			{
				Name:      "reorder",
				Usage:     "Move a feed to another list position",
				ArgsUsage: "<from-order> <to-order>",
				Action:    reorderFeed,
			},
			{
				Name:      "set-sort",
				Usage:     "Set a feed's story filter and ordering",
				ArgsUsage: "<feed-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "filter",
						Value: "all",
						Usage: "Story filter: all, unread or new",
					},
					&cli.BoolFlag{
						Name:  "by-date",
						Usage: "Order stories by date alone instead of feed order first",
					},
				},
				Action: setSort,
			},
			{
				Name:      "import",
				Usage:     "Import feeds from an OPML file",
				ArgsUsage: "<opml-file>",
				Action:    importOPML,
			},
			{
				Name:  "export",
				Usage: "Export feeds to OPML",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportOPML,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feedspool.db"
	}
	return filepath.Join(home, ".config", "feedspool", "feedspool.db")
}

func getDefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "feedspool", "config.toml")
}

func getStore(c *cli.Context) (*store.Store, error) {
	dbPath := c.String("db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func getPrefs(c *cli.Context) (*config.Prefs, error) {
	return config.Load(c.String("config"))
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func parseID(arg string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid ID %q", arg)
	}
	return id, nil
}

// runUpdates spools the requested updates and blocks until they finish,
// collecting the errors surfaced on the bus.
func runUpdates(c *cli.Context, s *store.Store, feedID int64, interactive bool) (map[string]interface{}, error) {
	prefs, err := getPrefs(c)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	var mu sync.Mutex
	var feedErrors []event.FeedError
	newStories := 0
	bus.Subscribe(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := e.(type) {
		case event.FeedError:
			feedErrors = append(feedErrors, ev)
		case event.NewStories:
			newStories = ev.Count
		}
	})

	sp := spool.New(bus)
	defer sp.Close()

	gate := update.NewDialGate(prefs.ProbeAddress)
	updater := update.New(s, sp, gate, bus, prefs)

	if feedID > 0 {
		updater.EnqueueUpdate(feedID, interactive)
	} else {
		if err := updater.EnqueueUpdateAll(interactive); err != nil {
			return nil, err
		}
	}
	if err := updater.Wait(context.Background()); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	result := map[string]interface{}{
		"success": len(feedErrors) == 0,
	}
	if len(feedErrors) > 0 {
		result["errors"] = feedErrors
	}
	if newStories > 0 {
		result["new_stories"] = newStories
	}
	return result, nil
}

func addFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool add <url>", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feed := model.NewFeed(c.Args().Get(0))
	if title := c.String("title"); title != "" {
		feed.Title = title
	}
	feed.Username = c.String("username")
	feed.Password = c.String("password")

	if err := s.AddOrEditFeed(feed); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to save feed: %v", err), ExitDataError)
	}

	// Fetch immediately so a broken subscription surfaces now.
	result, err := runUpdates(c, s, feed.ID, true)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to update feed: %v", err), ExitDataError)
	}

	saved, err := s.GetFeed(feed.ID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}
	result["feed"] = saved
	return outputJSON(result)
}

func listFeeds(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feeds, err := s.GetFeeds(c.String("filter"), 0, 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feeds: %v", err), ExitDataError)
	}
	return outputJSON(feeds)
}

func updateFeeds(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	result, err := runUpdates(c, s, c.Int64("feed-id"), !c.Bool("scheduled"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to update: %v", err), ExitDataError)
	}
	return outputJSON(result)
}

func listStories(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool list <feed-id>", ExitUsageError)
	}
	feedID, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid feed ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feed, err := s.GetFeed(feedID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}

	stories, err := s.GetStories(feed, c.String("filter"), c.Int("offset"), c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get stories: %v", err), ExitDataError)
	}
	count, err := s.GetStoryCount(feed, c.String("filter"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to count stories: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"feed":    feed.Title,
		"count":   count,
		"limit":   c.Int("limit"),
		"offset":  c.Int("offset"),
		"stories": stories,
	})
}

func showStory(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool show <story-id>", ExitUsageError)
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid story ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	story, urls, err := s.GetStory(id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get story: %v", err), ExitDataError)
	}

	feed, err := s.GetFeed(story.FeedID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}

	story.Summary = render.New().Summary(story.Summary, feed.AllowHTML)

	return outputJSON(map[string]interface{}{
		"story": story,
		"urls":  urls,
		"media": story.MediaURL(),
	})
}

func markRead(read bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("Usage: feedspool mark-read <story-id>...", ExitUsageError)
		}

		s, err := getStore(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		defer s.Close()

		marked := 0
		for i := 0; i < c.NArg(); i++ {
			id, err := parseID(c.Args().Get(i))
			if err != nil {
				continue
			}
			if err := s.MarkStoryRead(id, read); err != nil {
				continue
			}
			marked++
		}

		return outputJSON(map[string]interface{}{
			"marked": marked,
			"read":   read,
		})
	}
}

func markAllRead(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool mark-all-read <feed-id>", ExitUsageError)
	}
	feedID, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid feed ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feed, err := s.GetFeed(feedID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}
	if err := s.MarkAllRead(feed, true); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to mark all read: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed":    feed.Title,
	})
}

func markStarred(starred bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("Usage: feedspool star <story-id>...", ExitUsageError)
		}

		s, err := getStore(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		defer s.Close()

		marked := 0
		for i := 0; i < c.NArg(); i++ {
			id, err := parseID(c.Args().Get(i))
			if err != nil {
				continue
			}
			if err := s.MarkStarred(id, starred); err != nil {
				continue
			}
			marked++
		}

		return outputJSON(map[string]interface{}{
			"marked":  marked,
			"starred": starred,
		})
	}
}

func unstarAll(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool unstar-all <feed-id>", ExitUsageError)
	}
	feedID, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid feed ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feed, err := s.GetFeed(feedID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feed: %v", err), ExitDataError)
	}
	if err := s.MarkAllUnStarred(feed); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to unstar stories: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed":    feed.Title,
	})
}

func deleteStory(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool delete-story <story-id>", ExitUsageError)
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid story ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.DeleteStory(id); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to delete story: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success":  true,
		"story_id": id,
	})
}

func removeFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool remove <feed-id>", ExitUsageError)
	}
	feedID, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid feed ID", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.DeleteFeed(feedID); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to delete feed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed_id": feedID,
	})
}

func reorderFeed(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: feedspool reorder <from-order> <to-order>", ExitUsageError)
	}
	from, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid order", ExitUsageError)
	}
	to, err := parseID(c.Args().Get(1))
	if err != nil {
		return cli.Exit("Invalid order", ExitUsageError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.ReOrderFeed(int(from), int(to)); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to reorder: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"from":    from,
		"to":      to,
	})
}

func setSort(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool set-sort <feed-id>", ExitUsageError)
	}
	feedID, err := parseID(c.Args().Get(0))
	if err != nil {
		return cli.Exit("Invalid feed ID", ExitUsageError)
	}

	var filter model.StoryFilter
	switch c.String("filter") {
	case "all":
		filter = model.FilterAll
	case "unread":
		filter = model.FilterUnread
	case "new":
		filter = model.FilterNew
	default:
		return cli.Exit("Invalid filter: want all, unread or new", ExitUsageError)
	}

	mode := model.SortMode(0).WithFilter(filter)
	if c.Bool("by-date") {
		mode = model.SortMode(int(mode) | model.OrderByDateBit)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	if err := s.SetSortMode(feedID, mode); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to set sort mode: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success":   true,
		"feed_id":   feedID,
		"sort_mode": int(mode),
	})
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feedspool import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open file: %v", err), ExitDataError)
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	imported := 0
	for _, feed := range feeds {
		if err := s.AddOrEditFeed(feed); err != nil {
			log.WithFields(log.Fields{"url": feed.URL, "error": err}).Warn("Skipping feed")
			continue
		}
		imported++
	}

	return outputJSON(map[string]interface{}{
		"imported": imported,
		"total":    len(feeds),
	})
}

func exportOPML(c *cli.Context) error {
	s, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feeds, err := s.GetFeeds("", 0, 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feeds: %v", err), ExitDataError)
	}

	var out io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create file: %v", err), ExitDataError)
		}
		defer file.Close()
		out = file
	}

	if err := opml.Generate(out, feeds); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}
	return nil
}
