package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/snaporm/internal/library"
	"github.com/MarcoPoloResearchLab/snaporm/internal/orm"
	"github.com/MarcoPoloResearchLab/snaporm/internal/server"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog tables and apply pending data migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.open()
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			for _, relationship := range rt.service.Catalog().Model.Relationships() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s.%s -> %s (%s via %s)\n",
					relationship.Owner, relationship.Navigation, relationship.Target,
					describeCardinality(relationship), relationship.JoinField)
			}
			return nil
		},
	}
}

func newSeedCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample catalog, skipping authors that already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.open()
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			counts, err := rt.service.Seed(cmd.Context(), library.DefaultSeed())
			if err != nil {
				return err
			}
			printChanges(cmd.OutOrStdout(), counts)
			return nil
		},
	}
}

func newListCommand(app *application) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every author with books and tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.open()
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			authors, err := rt.service.ListAuthors(cmd.Context())
			if err != nil {
				return err
			}
			if dump {
				printer := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
				printer.Fdump(cmd.OutOrStdout(), authors)
				return nil
			}
			printAuthors(cmd.OutOrStdout(), authors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the resolved views instead of a summary")
	return cmd
}

func newServeCommand(app *application) *cobra.Command {
	defaults := app.viper
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), app)
		},
	}
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	if err := app.viper.BindPFlag("http.address", cmd.Flags().Lookup("http-address")); err != nil {
		panic(err)
	}
	return cmd
}

func runServer(ctx context.Context, app *application) error {
	rt, err := app.open()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Library:  rt.service,
		Logger:   rt.logger,
		Realtime: server.NewRealtimeDispatcher(),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func describeCardinality(relationship orm.Relationship) string {
	if !relationship.Multi {
		return "reference"
	}
	return relationship.Cardinality.String()
}

func printChanges(out io.Writer, counts []orm.ChangeCount) {
	for _, count := range counts {
		fmt.Fprintf(out, "%-8s added=%d modified=%d removed=%d\n", count.Entity, count.Added, count.Modified, count.Removed)
	}
}

func printAuthors(out io.Writer, authors []library.AuthorView) {
	if len(authors) == 0 {
		fmt.Fprintln(out, "catalog is empty")
		return
	}
	for _, author := range authors {
		fmt.Fprintf(out, "%s (%s)\n", author.Name, author.ID)
		for _, book := range author.Books {
			fmt.Fprintf(out, "  %s [%d] %.2f", book.Title, book.PublishedYear, book.Price)
			if len(book.Tags) > 0 {
				fmt.Fprintf(out, " #%v", book.Tags)
			}
			fmt.Fprintln(out)
		}
	}
}
