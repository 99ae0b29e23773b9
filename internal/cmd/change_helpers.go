package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runger/snapc/internal/snapd"
)

// call runs a sync endpoint and decodes its result into T.
func call[T any](cmd *cobra.Command, ep snapd.Endpoint) (T, error) {
	var zero T
	res, err := send(cmd, ep, nil)
	if err != nil {
		return zero, err
	}
	return snapd.Decode[T](res.Value)
}

func send(cmd *cobra.Command, ep snapd.Endpoint, progress snapd.ProgressFunc) (*snapd.Result, error) {
	client, err := app.Client()
	if err != nil {
		return nil, err
	}
	app.log.Debug("request", "endpoint", fmt.Sprintf("%T", ep))
	return client.Do(cmd.Context(), ep, progress)
}

// runChange submits an async endpoint and renders its change until ready.
func runChange(cmd *cobra.Command, ep snapd.Endpoint) (*snapd.Result, error) {
	view := newProgressView(app.cfg.UI.Progress, os.Stderr)
	res, err := send(cmd, ep, view.update)
	view.finish()
	if err != nil {
		if errors.Is(err, snapd.ErrCancelled) && res != nil && res.ChangeID != "" {
			return res, fmt.Errorf("change %s aborted: %w", res.ChangeID, err)
		}
		return res, err
	}
	return res, nil
}
