package engine

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// ImageWriter пишет один кадр на диск.
type ImageWriter func(path string, img image.Image) error

// WritePNG сохраняет кадр в PNG без потерь, создавая каталог при необходимости.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FrameName имя файла кадра в каталоге кадров: frame_00000.png, frame_00001.png...
func FrameName(i int) string {
	return fmt.Sprintf("frame_%05d.png", i)
}

// PrepareFramesDir всегда удаляет старое содержимое; при keep создаёт каталог заново.
func PrepareFramesDir(dir string, keep bool) error {
	if dir == "" {
		if keep {
			return errors.New("frames directory is not set")
		}
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if keep {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
