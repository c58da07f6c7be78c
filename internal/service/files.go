package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const defaultMIMEType = "application/octet-stream"

// hashContent вычисляет SHA-256 содержимого в hex
func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// detectMIMEType определяет MIME-тип по расширению имени файла
func detectMIMEType(filename, declared string) string {
	if declared != "" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return defaultMIMEType
}

// cleanFilename оставляет только имя файла без каталогов
func cleanFilename(name string) string {
	name = filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// blobKey формирует ключ хранения версии
func blobKey(ownerID, versionID uuid.UUID, filename string) string {
	return fmt.Sprintf("documents/%s/%s/%s", ownerID, versionID, filename)
}
