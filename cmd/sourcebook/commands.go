package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/migrate"
	"github.com/dan-solli/sourcebook/pkg/sourcebook"
)

func openDocument(path string) (*os.File, document.Format, error) {
	format, err := document.FormatFromPath(path)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, format, nil
}

func runPublish(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	f, format, err := openDocument(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	sk, err := sb.PublishDocument(ctx, f, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", sk)
	return nil
}

func runImport(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	f, format, err := openDocument(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ch, err := sb.ImportCharacter(ctx, f, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s)\n", ch.ID, ch.Name)
	return nil
}

func runCharacters(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, _ []string) error {
	list, err := sb.ListCharacters(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range list {
		fmt.Fprintf(out, "%s\t%s\t%s\n", c.ID, c.Name, c.Primary)
	}
	return nil
}

func runShow(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	ch, err := sb.GetCharacter(ctx, args[0])
	if err != nil {
		return err
	}
	return document.EncodeCharacter(cmd.OutOrStdout(), ch, document.FormatYAML)
}

func runCheck(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	paths, err := sb.UnresolvedReferences(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(paths) == 0 {
		fmt.Fprintln(out, "all references resolve")
		return nil
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return fmt.Errorf("%d unresolved references", len(paths))
}

func runMigrate(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	oldKey, err := key.ParseSourceKey(args[1])
	if err != nil {
		return err
	}
	newKey, err := key.ParseSourceKey(args[2])
	if err != nil {
		return err
	}

	_, report, err := sb.MigrateCharacter(ctx, args[0], oldKey, newKey)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "migrated %s from %s to %s: %d rewritten, %d dropped, %d stale\n",
		args[0], oldKey, newKey,
		report.Count(migrate.Rewritten), report.Count(migrate.Dropped), report.Count(migrate.Stale))
	for _, c := range report.Changes {
		if c.Outcome != migrate.Rewritten {
			fmt.Fprintf(out, "  %s %s (%s)\n", c.Outcome, c.From, c.Path)
		}
	}
	return nil
}

func runUpdates(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	updates, err := sb.CheckUpdates(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, u := range updates {
		if !u.HasUpdate {
			fmt.Fprintf(out, "%s is up to date\n", u.Current)
			continue
		}
		newer := make([]string, len(u.NewerVersions))
		for i, sk := range u.NewerVersions {
			newer[i] = sk.String()
		}
		fmt.Fprintf(out, "%s -> %s (available: %s)\n", u.Current, u.Latest, strings.Join(newer, ", "))
	}
	return nil
}

func runGroups(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, _ []string) error {
	groups, err := sb.Groups(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, g := range groups.Core {
		fmt.Fprintf(out, "core  %s\t%s\t%s\n", g.ID, g.Name, joinKeys(g.Versions))
	}
	for _, g := range groups.Extra {
		fmt.Fprintf(out, "extra %s\t%s\t%s (requires %s)\n", g.ID, g.Name, joinKeys(g.Versions), g.Requires)
	}
	return nil
}

func runResolve(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error {
	ref, err := key.ParseReference(args[0])
	if err != nil {
		return err
	}
	cat, err := content.ParseCategory(args[1])
	if err != nil {
		return err
	}
	if _, err := sb.Catalog().Load(ctx, ref.Source()); err != nil {
		return err
	}
	e, err := sb.Resolver().Lookup(ref.String(), cat, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.ID, e.Name)
	if e.Description != "" {
		fmt.Fprintln(cmd.OutOrStdout(), e.Description)
	}
	return nil
}

func joinKeys(keys []key.SourceKey) string {
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = k.Version().String()
	}
	return strings.Join(s, ", ")
}
