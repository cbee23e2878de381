package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/mossy-p/peer-signaling/config"
	"github.com/mossy-p/peer-signaling/internal/log"
	"github.com/mossy-p/peer-signaling/internal/rtc"
	"github.com/mossy-p/peer-signaling/internal/signalling"
	"github.com/mossy-p/peer-signaling/internal/state"
)

const readyTimeout = 10 * time.Second

// App is the command line peer: flags, state store and signalling client.
type App struct {
	relayURL    string
	name        string
	connect     []string
	stunServers []string
	turnServers string
	turnUser    string
	turnCred    string
	logLevel    string
	logFormat   string

	store  *state.Store
	client *signalling.Client
}

func (a *App) parseFlags() {
	pflag.StringVarP(&a.relayURL, "relay", "r", "ws://localhost:9898/", "Websocket URL of the signalling relay")
	pflag.StringVarP(&a.name, "name", "n", "", "Display name announced to other peers")
	pflag.StringSliceVarP(&a.connect, "connect", "c", nil, "Peer identities to offer a connection to once connected")
	pflag.StringSliceVarP(&a.stunServers, "stun", "S", []string{"stun1.l.google.com:19302", "stun2.l.google.com:19302"}, "List of used STUN servers")
	pflag.StringVar(&a.turnServers, "turn", "", "Comma separated TURN URLs")
	pflag.StringVar(&a.turnUser, "turn-username", "", "TURN username")
	pflag.StringVar(&a.turnCred, "turn-credential", "", "TURN credential")
	pflag.StringVarP(&a.logLevel, "log-level", "l", "info", "Log level (trace, debug, info, warn, error)")
	pflag.StringVar(&a.logFormat, "log-format", "text", "Log format (text or json)")

	pflag.Parse()
}

// Run parses flags, connects to the relay and serves stdin commands until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.parseFlags()
	log.SetupTo(os.Stderr, a.logLevel, a.logFormat)

	iceServers, err := config.ParseICEServers(config.NormalizeSTUN(a.stunServers), a.turnServers, a.turnUser, a.turnCred)
	if err != nil {
		return errors.Wrap(err, "ice servers")
	}

	a.store = state.NewStore()
	states, cancel := a.store.Subscribe(16)
	defer cancel()
	go a.printStates(states)

	a.client, err = signalling.Dial(ctx, signalling.Config{
		URL:        a.relayURL,
		Factory:    rtc.NewPionFactory(iceServers),
		Dispatcher: a.store,
	})
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.client.Run(ctx) }()

	select {
	case <-a.client.Ready():
	case <-a.client.Disconnected():
		a.client.Close()
		return errors.New("relay closed before assigning an identity")
	case <-time.After(readyTimeout):
		a.client.Close()
		return errors.New("timed out waiting for relay identity")
	}

	if err := a.setup(ctx); err != nil {
		logrus.WithError(err).Warn("setup incomplete")
	}

	go a.readCommands(ctx)
	go func() {
		<-a.client.Disconnected()
		if ctx.Err() != nil {
			return
		}
		logrus.Warn("relay connection lost, open peer sessions stay up until exit")
	}()

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) setup(ctx context.Context) error {
	id, err := a.client.OwnID(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("connected as %s\n", id)

	if a.name != "" {
		if err := a.client.SetName(ctx, a.name); err != nil {
			return errors.Wrap(err, "set name")
		}
	}
	for _, peer := range a.connect {
		if err := a.client.ConnectTo(ctx, strings.TrimSpace(peer)); err != nil {
			return errors.Wrapf(err, "connect to %s", peer)
		}
	}
	return nil
}

// readCommands reads "<peer> <text>" lines from stdin. "/connect <peer>" and
// "/name <name>" are also accepted.
func (a *App) readCommands(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		head, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		var err error
		switch head {
		case "/connect":
			err = a.client.ConnectTo(ctx, rest)
		case "/name":
			err = a.client.SetName(ctx, rest)
		default:
			err = a.client.SendData(ctx, head, rest)
		}
		if errors.Is(err, signalling.ErrClientClosed) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (a *App) printStates(states <-chan state.State) {
	var printed map[string]int
	for s := range states {
		next := make(map[string]int, len(s.Peers))
		for _, p := range s.Peers {
			next[p.UUID] = len(p.Messages)
			seen := printed[p.UUID]
			if seen > len(p.Messages) {
				seen = 0
			}
			for _, m := range p.Messages[seen:] {
				if m.Direction == state.DirectionIn {
					fmt.Printf("[%s] %s\n", peerLabel(p), m.Text)
				}
			}
		}
		printed = next

		logrus.WithFields(logrus.Fields{
			"status": s.ConnectionStatus,
			"peers":  len(s.Peers),
		}).Debug("state updated")
	}
}

func peerLabel(p state.Peer) string {
	if p.Name != "" {
		return p.Name
	}
	return p.UUID
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{}
	if err := app.Run(ctx); err != nil {
		logrus.WithError(err).Error("peer exited")
		os.Exit(1)
	}
}
