package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"
	"strings"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

type assetOptions struct {
	// Name is a pattern for the emitted file name: [name], [hash] and [ext]
	// are substituted.
	Name string `json:"name"`
}

// assetTransform emits the file as an auxiliary asset and exports its URL.
type assetTransform struct {
	opts assetOptions
}

func newAsset(_ Env, options map[string]any) (Transform, error) {
	t := &assetTransform{opts: assetOptions{Name: "[name].[hash][ext]"}}
	if err := decodeOptions(options, &t.opts); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *assetTransform) Name() string { return "asset" }

// AssetDir is the directory, relative to the output path and the public
// path, that holds emitted assets.
const AssetDir = "assets"

func (t *assetTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	sum := sha256.Sum256(in.Source)
	hash := hex.EncodeToString(sum[:])[:8]

	base := path.Base(in.ID)
	ext := path.Ext(base)
	name := strings.NewReplacer(
		"[name]", strings.TrimSuffix(base, ext),
		"[hash]", hash,
		"[ext]", ext,
	).Replace(t.opts.Name)

	url, err := json.Marshal(strings.TrimSuffix(in.PublicPath, "/") + "/" + AssetDir + "/" + name)
	if err != nil {
		return nil, err
	}

	content := make([]byte, len(in.Source))
	copy(content, in.Source)

	return &Output{
		Code:   exportsOf(url),
		Kind:   core.KindJS,
		Assets: []core.Asset{{Name: name, Content: content}},
	}, nil
}
