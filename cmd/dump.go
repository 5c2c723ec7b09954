package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hqmux/internal/observability"
	"github.com/xkilldash9x/hqmux/pkg/hqcodec"
	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

var (
	dumpRole    string
	dumpStream  uint64
	dumpHex     bool
	dumpControl bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Decode one captured stream's bytes and print every codec event",
	Long: `Reads the raw bytes of a single HTTP/3 stream (from a file or stdin)
and feeds them through the multiplexing codec, printing each decoded event.
With --control the input is parsed as the peer's control stream instead of a
request stream.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpRole, "role", "upstream", "connection role to decode as: upstream or downstream")
	dumpCmd.Flags().Uint64Var(&dumpStream, "stream", 0, "stream identity the bytes belong to")
	dumpCmd.Flags().BoolVar(&dumpHex, "hex", false, "input is hex encoded (whitespace ignored)")
	dumpCmd.Flags().BoolVar(&dumpControl, "control", false, "parse the input as the peer's control stream")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	var direction hqcodec.TransportDirection
	switch dumpRole {
	case "upstream":
		direction = hqcodec.DirectionUpstream
	case "downstream":
		direction = hqcodec.DirectionDownstream
	default:
		return fmt.Errorf("unknown role %q (want upstream or downstream)", dumpRole)
	}

	data, err := readDumpInput(args)
	if err != nil {
		return err
	}

	codec := hqcodec.NewMultiCodec(direction, logger)
	codec.SetCallback(&printingCallback{out: cmd.OutOrStdout()})

	if dumpControl {
		if _, err := codec.Control().OnIngress(data); err != nil {
			return fmt.Errorf("control stream decode failed: %w", err)
		}
		return nil
	}

	id := hqcodec.StreamID(dumpStream)
	codec.AddCodec(id)
	if !codec.SetCurrentStream(id) {
		return fmt.Errorf("stream %d not registered", dumpStream)
	}
	if _, err := codec.OnIngress(data); err != nil {
		return fmt.Errorf("stream decode failed: %w", err)
	}
	codec.SetCurrentStream(id)
	if err := codec.OnIngressEOF(); err != nil {
		return fmt.Errorf("stream decode failed at EOF: %w", err)
	}

	logger.Debug("dump complete", zap.Int("bytes", len(data)))
	return nil
}

func readDumpInput(args []string) ([]byte, error) {
	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if dumpHex {
		compact := strings.Join(strings.Fields(string(data)), "")
		decoded, err := hex.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("invalid hex input: %w", err)
		}
		data = decoded
	}
	return data, nil
}

// printingCallback renders every codec event as one line on out.
type printingCallback struct {
	hqcodec.CallbackBase
	out io.Writer
}

func (p *printingCallback) OnMessageBegin(stream hqcodec.StreamID) {
	fmt.Fprintf(p.out, "[stream %d] message begin\n", stream)
}

func (p *printingCallback) OnHeadersComplete(stream hqcodec.StreamID, msg *hqcodec.Message) {
	if msg.IsRequest() {
		fmt.Fprintf(p.out, "[stream %d] request %s %s (authority=%s)\n", stream, msg.Method, msg.Path, msg.Authority)
	} else {
		fmt.Fprintf(p.out, "[stream %d] response status=%d\n", stream, msg.Status)
	}
	printHeaders(p.out, msg.Headers)
}

func (p *printingCallback) OnPushPromise(stream hqcodec.StreamID, pushID uint64, msg *hqcodec.Message) {
	fmt.Fprintf(p.out, "[stream %d] push promise id=%d: %s %s\n", stream, pushID, msg.Method, msg.Path)
	printHeaders(p.out, msg.Headers)
}

func (p *printingCallback) OnBody(stream hqcodec.StreamID, data []byte) {
	fmt.Fprintf(p.out, "[stream %d] body chunk (%d bytes)\n", stream, len(data))
}

func (p *printingCallback) OnTrailersComplete(stream hqcodec.StreamID, trailers http.Header) {
	fmt.Fprintf(p.out, "[stream %d] trailers\n", stream)
	printHeaders(p.out, trailers)
}

func (p *printingCallback) OnMessageComplete(stream hqcodec.StreamID) {
	fmt.Fprintf(p.out, "[stream %d] message complete\n", stream)
}

func (p *printingCallback) OnSettings(settings []hqframe.Setting) {
	fmt.Fprintf(p.out, "[control] SETTINGS (%d entries)\n", len(settings))
	for _, s := range settings {
		fmt.Fprintf(p.out, "  0x%x = %d\n", uint64(s.ID), s.Value)
	}
}

func (p *printingCallback) OnGoaway(lastID uint64) {
	fmt.Fprintf(p.out, "[control] GOAWAY last=%d\n", lastID)
}

func (p *printingCallback) OnCancelPush(pushID uint64) {
	fmt.Fprintf(p.out, "[control] CANCEL_PUSH id=%d\n", pushID)
}

func (p *printingCallback) OnMaxPushID(maxPushID uint64) {
	fmt.Fprintf(p.out, "[control] MAX_PUSH_ID max=%d\n", maxPushID)
}

func printHeaders(out io.Writer, h http.Header) {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			fmt.Fprintf(out, "  %s: %s\n", strings.ToLower(name), v)
		}
	}
}
