package model

import (
	"encoding/json"
	"io"
	"os"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// FormatName は永続化ファイルの識別子です。
const FormatName = "ebmgo"

// FormatVersion は永続化フォーマットのバージョンです。
// 読み込み時にこの値と一致しないファイルは拒否されます。
const FormatVersion = "1"

// Envelope は保存されるJSON文書の外枠です。
type Envelope struct {
	Format  string          `json:"format"`
	Version string          `json:"version"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// SaveJSON はモデルをファイルに保存する
//
// パラメータ:
//   - v: 保存する値（JSONエンコード可能であること）
//   - kind: 文書の種類（読み込み時に照合される）
//   - filename: 保存先のファイルパス
//
// 使用例:
//
//	err := model.SaveJSON(m, "ebm", "model.json")
func SaveJSON(v interface{}, kind, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", filename)
		}
	}()
	return WriteJSON(v, kind, file)
}

// LoadJSON はファイルからモデルを読み込む
//
// パラメータ:
//   - v: 読み込み先（ポインタ）
//   - kind: 期待する文書の種類
//   - filename: 読み込み元のファイルパス
func LoadJSON(v interface{}, kind, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()
	return ReadJSON(v, kind, file)
}

// WriteJSON はモデルをio.Writerに書き出す
func WriteJSON(v interface{}, kind string, w io.Writer) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode model")
	}
	env := Envelope{Format: FormatName, Version: FormatVersion, Kind: kind, Payload: payload}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return errors.Wrap(err, "write model")
	}
	return nil
}

// ReadJSON はio.Readerからモデルを読み込み、形式・バージョン・種類を検証する
func ReadJSON(v interface{}, kind string, r io.Reader) error {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return errors.Wrap(err, "decode model")
	}
	if env.Format != FormatName {
		return errors.NewValidationError("format", "not an "+FormatName+" document", env.Format)
	}
	if env.Version != FormatVersion {
		return errors.NewValidationError("version", "unsupported format version", env.Version)
	}
	if env.Kind != kind {
		return errors.NewValidationError("kind", "expected a "+kind+" document", env.Kind)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errors.Wrap(err, "decode payload")
	}
	return nil
}
