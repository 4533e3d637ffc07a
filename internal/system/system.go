package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RigExtensions форматы, которые понимает загрузчик рига.
var RigExtensions = []string{".json", ".yaml", ".yml"}

// FindLatestRig ищет в папке самый свежий файл рига по времени изменения.
// Файлы конфигурации (*.config.yaml) пропускаются.
func FindLatestRig(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !isRigFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if latestFile == "" || info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no rig files (%s) found in %s", strings.Join(RigExtensions, ", "), dir)
	}
	return latestFile, nil
}

func isRigFile(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, ".") {
		return false
	}
	for _, ext := range RigExtensions {
		if strings.HasSuffix(lower, ".config"+ext) {
			return false
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
