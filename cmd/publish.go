package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"multitrack/core/metadata"
	"multitrack/core/tree"
	"multitrack/core/workflow"
	"multitrack/model"

	"github.com/spf13/cobra"
)

var (
	publishOwner       string
	publishFile        string
	publishName        string
	publishDescription string
	publishParent      string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a track, or a remix when --parent is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		name := publishName
		if name == "" {
			name = trackName(publishFile)
		}
		draft := &workflow.Draft{
			Audio:       workflow.AudioFromPath(publishFile, audioType(publishFile)),
			Title:       name,
			Description: publishDescription,
		}
		if publishParent != "" {
			parent, err := a.lookup(ctx, publishParent)
			if err != nil {
				return err
			}
			draft.Parent = parent
		}

		res, err := a.publish(ctx, publishOwner, draft, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVarP(&publishOwner, "owner", "o", "", "profile id to publish as")
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "", "audio file (wav, mp3 or ogg)")
	publishCmd.Flags().StringVarP(&publishName, "name", "n", "", "track name, defaults to the file name")
	publishCmd.Flags().StringVarP(&publishDescription, "description", "d", "", "track description")
	publishCmd.Flags().StringVarP(&publishParent, "parent", "p", "", "publication id to remix")
	publishCmd.MarkFlagRequired("owner")
	publishCmd.MarkFlagRequired("file")

	publishCmd.Example = `  # publish an original
  multitrack publish -o 0x15 -f drums.wav -n "Drums"

  # layer bass over it
  multitrack publish -o 0x15 -f bass.wav -n "Bass" -p 0x15-0x01`
}

// publish runs one workflow and prints its progress to out.
func (a *app) publish(ctx context.Context, owner string, draft *workflow.Draft, out io.Writer) (*workflow.Result, error) {
	wf := workflow.New(owner, draft, workflow.Deps{
		Store:   a.blobs,
		Mixer:   a.mixer,
		Ledger:  a.ledger,
		Scheme:  a.resolver.Scheme,
		Modules: a.modules,
		Progress: func(p workflow.Progress) {
			fmt.Fprintf(out, "[%s] %s\n", p.Stage, p.Message)
		},
	})
	res, err := wf.Run(ctx)
	if err != nil {
		return nil, err
	}
	a.cache.Invalidate(ctx, owner)
	return res, nil
}

// lookup finds a publication through its owner's index listing.
func (a *app) lookup(ctx context.Context, id string) (*model.PublicationRecord, error) {
	owner, _, err := model.ParseID(id)
	if err != nil {
		return nil, err
	}
	records, err := a.index.Publications(ctx, owner)
	if err != nil {
		return nil, err
	}
	n := tree.Build(records).Find(id)
	if n == nil {
		return nil, fmt.Errorf("publication %s not found", id)
	}
	rec := n.Record
	return &rec, nil
}

func trackName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func audioType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return metadata.AudioWAV
	case ".mp3":
		return metadata.AudioMPEG
	case ".ogg":
		return metadata.AudioOGG
	}
	return mime.TypeByExtension(filepath.Ext(path))
}
