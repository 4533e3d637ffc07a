package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

var ErrMissingCapability = errors.New("video: ffmpeg lacks a required encoder or muxer")

// Capabilities то, что ffmpeg умеет из нужного экспорту.
type Capabilities struct {
	Encoders []string
	Muxers   []string
}

func (c Capabilities) HasEncoder(name string) bool { return contains(c.Encoders, name) }
func (c Capabilities) HasMuxer(name string) bool   { return contains(c.Muxers, name) }

func contains(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

// Probe параллельно опрашивает ffmpeg -encoders и -muxers.
// Если нет libx264 или mp4, возвращает и список, и ErrMissingCapability.
func Probe(ctx context.Context, ffmpegPath string) (Capabilities, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	var caps Capabilities
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
		if err != nil {
			return fmt.Errorf("ffmpeg -encoders: %w", err)
		}
		caps.Encoders = parseList(out)
		return nil
	})
	g.Go(func() error {
		out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-muxers").Output()
		if err != nil {
			return fmt.Errorf("ffmpeg -muxers: %w", err)
		}
		caps.Muxers = parseList(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Capabilities{}, err
	}

	var missing []string
	if !caps.HasEncoder("libx264") {
		missing = append(missing, "encoder libx264")
	}
	if !caps.HasMuxer("mp4") {
		missing = append(missing, "muxer mp4")
	}
	if len(missing) > 0 {
		return caps, fmt.Errorf("%w: %s", ErrMissingCapability, strings.Join(missing, ", "))
	}
	return caps, nil
}

// parseList разбирает вывод -encoders/-muxers: легенда, строка из дефисов, затем
// "<флаги> <имя>[,<имя>...] <описание>". Результат отсортирован.
func parseList(out []byte) []string {
	var names []string
	inBody := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inBody {
			inBody = line != "" && strings.Trim(line, "-") == ""
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, n := range strings.Split(fields[1], ",") {
			if n != "" {
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
