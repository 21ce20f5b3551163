// Package credstore は資格情報のファイルベース永続化を提供する。
// ブラウザ版で言うlocalStorageに相当し、トークンとユーザー名の
// 2値だけをJSONファイルに保存する。
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hitoshi/storyman/internal/session"
)

// credentialsFile は永続化ファイルのJSON形式。
type credentialsFile struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// FileStore はsession.CredentialStoreのファイル実装。
// トークンを含むためファイルは0600で作成する。
type FileStore struct {
	path string
}

// NewFileStore はFileStoreの新しいインスタンスを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load は保存済みの資格情報を読み込む。
// ファイルが存在しない場合はnilを返す（初回起動・ログアウト後の正常状態）。
func (s *FileStore) Load() (*session.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("資格情報ファイルの読み込みに失敗しました: %w", err)
	}

	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("資格情報ファイルのパースに失敗しました: %w", err)
	}

	return &session.Credentials{Token: f.Token, Username: f.Username}, nil
}

// Save は資格情報をファイルに書き込む。
// 親ディレクトリが存在しない場合は作成する。
func (s *FileStore) Save(creds session.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("資格情報ディレクトリの作成に失敗しました: %w", err)
	}

	data, err := json.Marshal(credentialsFile{Token: creds.Token, Username: creds.Username})
	if err != nil {
		return fmt.Errorf("資格情報のエンコードに失敗しました: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("資格情報ファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Clear は保存済みの資格情報を消去する。
// ファイルが存在しない場合もエラーにしない。
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("資格情報ファイルの削除に失敗しました: %w", err)
	}
	return nil
}
