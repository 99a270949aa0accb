package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nearfield/nearfield/internal/client"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/spatial"
)

var (
	serverURL   string
	roomID      string
	displayName string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and connect to its participants",
	Long: `Join authenticates against the coordinator, opens the signaling
channel and establishes a direct audio link to every participant in the
room. While joined, stdin accepts:

  pos <x> <z>     move to a world position
  mute on|off     toggle the muted flag
  spatial on|off  toggle spatial rendering
  quit            leave and exit`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "coordinator base URL")
	joinCmd.Flags().StringVarP(&roomID, "room", "r", "", "room id to join")
	joinCmd.Flags().StringVarP(&displayName, "name", "n", "", "display name")
	_ = joinCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.Connect(ctx, serverURL)
	if err != nil {
		return err
	}

	media, err := client.NewSilenceSource()
	if err != nil {
		c.Close()
		return fmt.Errorf("open media source: %w", err)
	}

	sources := spatial.NewSourceSet(func() spatial.Panner { return spatial.NewStereoPanner() })
	mgr := client.NewManager(c, media, sources)
	// One exit path: links, capture and the channel all close together.
	defer mgr.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, mgr)
	}()

	if err := mgr.Join(domain.RoomID(roomID), displayName); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	log.Info().Str("room", roomID).Msg("join requested")

	go readCommands(ctx, cancel, mgr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("signaling channel: %w", err)
		}
		return nil
	}
}

func readCommands(ctx context.Context, quit context.CancelFunc, mgr *client.Manager) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "pos":
			if len(fields) != 3 {
				fmt.Println("usage: pos <x> <z>")
				continue
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			z, errZ := strconv.ParseFloat(fields[2], 64)
			if errX != nil || errZ != nil {
				fmt.Println("usage: pos <x> <z>")
				continue
			}
			if err := mgr.SetLocalPosition(domain.Position{X: x, Z: z}); err != nil {
				log.Error().Err(err).Msg("position update")
			}
		case "mute":
			if len(fields) != 2 {
				fmt.Println("usage: mute on|off")
				continue
			}
			if err := mgr.SetMuted(fields[1] == "on"); err != nil {
				log.Error().Err(err).Msg("mute update")
			}
		case "spatial":
			if len(fields) != 2 {
				fmt.Println("usage: spatial on|off")
				continue
			}
			mgr.SetSpatial(fields[1] == "on")
		case "quit":
			quit()
			return
		default:
			fmt.Println("commands: pos, mute, spatial, quit")
		}
	}
}
