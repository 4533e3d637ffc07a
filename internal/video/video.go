package video

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// MinBitrate нижняя граница целевого битрейта, бит/с.
	MinBitrate = 2_000_000
	// MaxBitrate верхняя граница: ffmpeg хранит битрейт в int32.
	MaxBitrate = math.MaxInt32
)

var (
	ErrSessionClosed = errors.New("video: session is already stopped")
	ErrFrameSize     = errors.New("video: frame size does not match the session")
)

// Quality профиль кодирования. DefaultQuality даёт визуально без потерь H.264 для анимации.
type Quality struct {
	Codec       string
	PixelFormat string
	Preset      string
	CRF         int
	Profile     string
	Tune        string
	Bitrate     int64
}

func DefaultQuality(w, h, fps int) Quality {
	return Quality{
		Codec:       "libx264",
		PixelFormat: "yuv420p",
		Preset:      "medium",
		CRF:         18,
		Profile:     "high",
		Tune:        "animation",
		Bitrate:     TargetBitrate(w, h, fps),
	}
}

// TargetBitrate = w*h*fps*0.75 бит/с, не меньше MinBitrate и не больше MaxBitrate.
func TargetBitrate(w, h, fps int) int64 {
	if fps < 1 {
		fps = 1
	}
	bits := float64(w) * float64(h) * float64(fps) * 0.75
	if bits < MinBitrate {
		return MinBitrate
	}
	if bits > MaxBitrate {
		return MaxBitrate
	}
	return int64(bits)
}

// Encoder открывает сессию кодирования в файл.
type Encoder interface {
	Open(path string, w, h, fps int, q Quality) (Session, error)
}

// Session принимает кадры по порядку. Stop завершает файл, Release освобождает процесс.
// Оба вызова безопасно повторять.
type Session interface {
	Submit(img *image.RGBA) error
	Stop() error
	Release() error
}

// FFmpegEncoder кодирует через внешний ffmpeg, кадры идут raw RGBA в stdin.
type FFmpegEncoder struct {
	Path        string
	Log         logrus.FieldLogger
	StderrLines int
}

func (e *FFmpegEncoder) Open(path string, w, h, fps int, q Quality) (Session, error) {
	if w < 1 || h < 1 || fps < 1 {
		return nil, fmt.Errorf("invalid encoder geometry %dx%d @ %d fps", w, h, fps)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	bin := e.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	lines := e.StderrLines
	if lines <= 0 {
		lines = 20
	}
	log := e.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	args := buildArgs(path, w, h, fps, q)
	cmd := exec.Command(bin, args...)
	stderr := newLastLines(lines)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":  path,
		"codec": q.Codec,
		"size":  fmt.Sprintf("%dx%d", w, h),
		"fps":   fps,
	}).Infof("encoder configured at ~%d kbps", q.Bitrate/1000)
	log.Debugf("ffmpeg %v", args)

	return &ffmpegSession{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		width:  w,
		height: h,
		path:   path,
		log:    log,
	}, nil
}

func buildArgs(path string, w, h, fps int, q Quality) []string {
	rate := strconv.Itoa(fps)
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-framerate", rate,
		"-i", "-",
		"-an",
		"-c:v", q.Codec,
		"-pix_fmt", q.PixelFormat,
	}
	// Пустые поля профиля просто не передаются
	if q.Preset != "" {
		args = append(args, "-preset", q.Preset)
	}
	if q.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(q.CRF))
	}
	if q.Profile != "" {
		args = append(args, "-profile:v", q.Profile)
	}
	if q.Tune != "" {
		args = append(args, "-tune", q.Tune)
	}
	if q.Bitrate > 0 {
		args = append(args, "-b:v", strconv.FormatInt(q.Bitrate, 10))
	}
	args = append(args,
		"-r", rate,
		"-movflags", "+faststart",
		"-f", "mp4",
		path,
	)
	return args
}

type ffmpegSession struct {
	mu sync.Mutex

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *lastLines
	width  int
	height int
	path   string
	log    logrus.FieldLogger

	frames   int
	stopped  bool
	waited   bool
	released bool
}

func (s *ffmpegSession) Submit(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.released {
		return ErrSessionClosed
	}
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("%w: got %dx%d, session is %dx%d", ErrFrameSize, b.Dx(), b.Dy(), s.width, s.height)
	}

	// Запись raw RGBA данных
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return s.withStderr(fmt.Errorf("write frame %d: %w", s.frames, err))
	}
	s.frames++
	return nil
}

func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		_, err := w.Write(img.Pix[:rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// Stop закрывает stdin и ждёт, пока ffmpeg допишет контейнер.
func (s *ffmpegSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.released {
		return nil
	}
	s.stopped = true

	closeErr := s.stdin.Close()
	waitErr := s.cmd.Wait()
	s.waited = true
	if waitErr != nil {
		return s.withStderr(fmt.Errorf("ffmpeg wait error: %w", waitErr))
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return fmt.Errorf("close ffmpeg stdin: %w", closeErr)
	}
	s.log.WithFields(logrus.Fields{"path": s.path, "frames": s.frames}).Debug("encoder stopped")
	return nil
}

// Release убивает процесс, если Stop не вызывался или не дошёл до Wait.
func (s *ffmpegSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	if s.waited {
		return nil
	}

	s.stdin.Close()
	var killErr error
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		killErr = fmt.Errorf("kill ffmpeg: %w", err)
	}
	// Ошибка Wait после Kill ожидаема ("signal: killed")
	_ = s.cmd.Wait()
	s.waited = true
	s.log.WithField("path", s.path).Debug("encoder released without stop")
	return killErr
}

func (s *ffmpegSession) withStderr(err error) error {
	s.stderr.Close()
	if tail := s.stderr.String(); tail != "" {
		return fmt.Errorf("%w: %s", err, tail)
	}
	return err
}
