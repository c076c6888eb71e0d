package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/jobtrack/internal/api"
	"github.com/kalambet/jobtrack/internal/config"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/views"
)

// now is replaced in tests.
var now = time.Now

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign up, sign in and out",
}

var authSignUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp()
		if err != nil {
			return err
		}
		res, err := a.session.SignUp(cmd.Context(), email, password, name)
		if err != nil {
			return err
		}
		a.remember(res.Session.Token)
		printSuccess("Signed up as %s", res.User.Email)
		return nil
	},
}

var authSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		a, err := newApp()
		if err != nil {
			return err
		}
		res, err := a.session.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		a.remember(res.Session.Token)
		printSuccess("Signed in as %s (%d jobs)", res.User.Email, len(a.jobs.Jobs()))
		return nil
	},
}

var authSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() {
			if err := config.DeleteSessionToken(a.secrets); err != nil {
				printWarning("could not forget session token: %v", err)
			}
		}()

		if _, err := a.resume(cmd.Context()); err != nil {
			if errors.Is(err, errSignedOut) {
				printWarning("Already signed out")
				return nil
			}
			return err
		}
		if err := a.session.SignOut(cmd.Context()); err != nil {
			printWarning("server sign-out failed: %v", err)
		}
		printSuccess("Signed out")
		return nil
	},
}

var authWhoAmICmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		u, err := a.resume(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Email, u.ID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{authSignUpCmd, authSignInCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password")
		c.MarkFlagRequired("email")
		c.MarkFlagRequired("password")
	}
	authSignUpCmd.Flags().String("name", "", "full name")
	authSignUpCmd.MarkFlagRequired("name")

	authCmd.AddCommand(authSignUpCmd)
	authCmd.AddCommand(authSignInCmd)
	authCmd.AddCommand(authSignOutCmd)
	authCmd.AddCommand(authWhoAmICmd)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "List and manage job applications",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications",
	Long: `List applications, newest first by default.

Examples:
  jobtrack jobs list --status interview
  jobtrack jobs list --search acme --sort company --order asc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}

		list := views.FilterAndSort(a.jobs.Jobs(), q)
		if asJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No applications found.")
			return nil
		}
		renderJobs(cmd.OutOrStdout(), list, now())
		return nil
	},
}

func queryFromFlags(fs *pflag.FlagSet) (views.Query, error) {
	search, _ := fs.GetString("search")
	status, _ := fs.GetString("status")
	sortBy, _ := fs.GetString("sort")
	order, _ := fs.GetString("order")

	q := views.DefaultQuery()
	q.Search = search
	var err error
	if q.Status, err = views.ParseStatusFilter(status); err != nil {
		return q, err
	}
	if q.SortField, err = views.ParseSortField(sortBy); err != nil {
		return q, err
	}
	if q.SortOrder, err = views.ParseSortOrder(order); err != nil {
		return q, err
	}
	return q, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// followUpLabel renders a follow-up date with its distance from now.
func followUpLabel(d *jobs.Date, at time.Time) string {
	switch views.FollowUpStateOf(d, at) {
	case views.FollowUpNone:
		return "-"
	case views.FollowUpOverdue:
		return colorize(colorRed, d.String()+" (overdue, "+humanize.RelTime(d.Time, at, "ago", "from now")+")")
	case views.FollowUpSoon:
		return colorize(colorYellow, d.String()+" ("+humanize.RelTime(d.Time, at, "ago", "from now")+")")
	}
	return d.String()
}

func renderJobs(w io.Writer, list []jobs.Job, at time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tPOSITION\tSTATUS\tAPPLIED\tFOLLOW-UP")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(j.ID), j.CompanyName, j.PositionTitle, j.Status,
			j.DateApplied.String(), followUpLabel(j.FollowUpDate, at))
	}
	tw.Flush()
}

// findJob resolves a full id or a unique id prefix against the loaded list.
func findJob(a *app, ref string) (jobs.Job, error) {
	if j, ok := a.jobs.Find(ref); ok {
		return j, nil
	}
	var match []jobs.Job
	for _, j := range a.jobs.Jobs() {
		if strings.HasPrefix(j.ID, ref) {
			match = append(match, j)
		}
	}
	switch len(match) {
	case 0:
		return jobs.Job{}, fmt.Errorf("no job with id %q", ref)
	case 1:
		return match[0], nil
	}
	return jobs.Job{}, fmt.Errorf("id prefix %q matches %d jobs", ref, len(match))
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}
		j, err := findJob(a, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), j)
	},
}

// addJobFlags registers the form fields shared by add and edit.
func addJobFlags(fs *pflag.FlagSet) {
	fs.String("company", "", "company name")
	fs.String("position", "", "position title")
	fs.String("applied", "", "date applied, YYYY-MM-DD (default today)")
	fs.String("status", "", "status: Wishlist, Applied, Interview, Offer, Rejected or Archived")
	fs.String("location", "", "location")
	fs.String("email", "", "email address used to apply")
	fs.String("source", "", "where the posting was found")
	fs.String("follow-up", "", "follow-up date, YYYY-MM-DD (empty clears it)")
	fs.String("notes", "", "free-form notes")
	fs.String("cv", "", "path to a CV PDF to upload")
	fs.String("cover-letter", "", "path to a cover letter PDF to upload")
}

// applyJobFlags copies every flag the user set onto f.
func applyJobFlags(fs *pflag.FlagSet, f *jobs.FormData) error {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("company", &f.CompanyName)
	str("position", &f.PositionTitle)
	str("location", &f.Location)
	str("email", &f.EmailUsed)
	str("source", &f.Source)
	str("notes", &f.Notes)

	if fs.Changed("applied") {
		v, _ := fs.GetString("applied")
		d, err := jobs.ParseDate(v)
		if err != nil {
			return err
		}
		f.DateApplied = d
	}
	if fs.Changed("status") {
		v, _ := fs.GetString("status")
		s, err := jobs.ParseStatus(v)
		if err != nil {
			return err
		}
		f.Status = s
	}
	if fs.Changed("follow-up") {
		v, _ := fs.GetString("follow-up")
		d, err := jobs.ParseDate(v)
		if err != nil {
			return err
		}
		f.FollowUpDate = d.Ptr()
	}
	return nil
}

func readAttachment(path string) (gateway.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gateway.Attachment{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return gateway.Attachment{
		Filename:    filepath.Base(path),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

// uploadAttachments sends the CV and cover letter concurrently under scope
// and writes the resulting URLs into f. Nothing is uploaded for empty paths.
func uploadAttachments(ctx context.Context, a *app, scope, cvPath, coverPath string, f *jobs.FormData) error {
	owner := a.session.OwnerID(ctx)
	g, gctx := errgroup.WithContext(ctx)

	upload := func(path string, kind gateway.Kind, dst *string) {
		if path == "" {
			return
		}
		g.Go(func() error {
			att, err := readAttachment(path)
			if err != nil {
				return err
			}
			printStep("Uploading %s (%s)", att.Filename, humanize.Bytes(uint64(len(att.Data))))
			url, err := a.client.UploadAttachment(gctx, owner, scope, att, kind)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", att.Filename, err)
			}
			*dst = url
			return nil
		})
	}
	upload(cvPath, gateway.KindCV, &f.CVURL)
	upload(coverPath, gateway.KindCoverLetter, &f.CoverLetterURL)
	return g.Wait()
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new application",
	Long: `Record a new application.

Examples:
  jobtrack jobs add --company Acme --position "Backend Engineer"
  jobtrack jobs add --company Acme --position SRE --cv ./cv.pdf --follow-up 2025-07-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := jobs.FormData{
			Status:      jobs.StatusApplied,
			DateApplied: jobs.DateOf(now()),
		}
		if err := applyJobFlags(cmd.Flags(), &f); err != nil {
			return err
		}
		if err := f.Validate(); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := a.resume(cmd.Context()); err != nil {
			return err
		}

		cvPath, _ := cmd.Flags().GetString("cv")
		coverPath, _ := cmd.Flags().GetString("cover-letter")
		if err := uploadAttachments(cmd.Context(), a, uuid.NewString(), cvPath, coverPath, &f); err != nil {
			return err
		}

		j, err := a.jobs.Add(cmd.Context(), f)
		if err != nil {
			return err
		}
		printSuccess("Added %s at %s (%s)", j.PositionTitle, j.CompanyName, shortID(j.ID))
		return nil
	},
}

var jobsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of an application",
	Long: `Change fields of an application. Only the flags given are changed.

Examples:
  jobtrack jobs edit 1a2b3c4d --status interview --follow-up 2025-07-10
  jobtrack jobs edit 1a2b3c4d --cover-letter ./letter.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}
		current, err := findJob(a, args[0])
		if err != nil {
			return err
		}

		f := current.Form()
		if err := applyJobFlags(cmd.Flags(), &f); err != nil {
			return err
		}
		if err := f.Validate(); err != nil {
			return err
		}

		cvPath, _ := cmd.Flags().GetString("cv")
		coverPath, _ := cmd.Flags().GetString("cover-letter")
		if err := uploadAttachments(cmd.Context(), a, current.ID, cvPath, coverPath, &f); err != nil {
			return err
		}

		j, err := a.jobs.Update(cmd.Context(), current.ID, f)
		if err != nil {
			return err
		}
		printSuccess("Updated %s at %s", j.PositionTitle, j.CompanyName)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an application",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}
		j, err := findJob(a, args[0])
		if err != nil {
			return err
		}
		if err := a.jobs.Delete(cmd.Context(), j.ID); err != nil {
			return err
		}
		printSuccess("Deleted %s at %s", j.PositionTitle, j.CompanyName)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("search", "", "case-insensitive text in company, position, location or notes")
	jobsListCmd.Flags().String("status", "", "only this status (default all)")
	jobsListCmd.Flags().String("sort", "date", "sort by date, company or position")
	jobsListCmd.Flags().String("order", "desc", "asc or desc")
	jobsListCmd.Flags().Bool("json", false, "print JSON")

	addJobFlags(jobsAddCmd.Flags())
	addJobFlags(jobsEditCmd.Flags())

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsEditCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}

// --- stats / follow-ups ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals per status and this week's applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}

		d := views.Summarize(a.jobs.Jobs(), now())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %d\n", colorize(colorBold, "Total:"), d.Total)
		for _, s := range jobs.Statuses() {
			fmt.Fprintf(out, "  %-10s %d\n", s, d.ByStatus[s])
		}
		fmt.Fprintf(out, "%s %d\n", colorize(colorBold, "This week:"), d.ThisWeek)
		fmt.Fprintf(out, "%s %d\n", colorize(colorBold, "Follow-ups due:"), len(d.FollowUps))
		return nil
	},
}

var followUpsCmd = &cobra.Command{
	Use:     "followups",
	Aliases: []string{"follow-ups"},
	Short:   "List overdue follow-ups and those due within a week",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.loaded(cmd.Context()); err != nil {
			return err
		}

		at := now()
		var due []jobs.Job
		for _, j := range a.jobs.Jobs() {
			switch views.FollowUpStateOf(j.FollowUpDate, at) {
			case views.FollowUpOverdue, views.FollowUpSoon:
				due = append(due, j)
			}
		}
		if len(due) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No follow-ups due.")
			return nil
		}
		renderJobs(cmd.OutOrStdout(), due, at)
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := a.resume(cmd.Context()); err != nil {
			return err
		}
		p, err := a.client.Profile(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s] %s\n", profile.Initials(p.FullName), p.DisplayName())
		fmt.Fprintf(out, "  email:  %s\n", p.Email)
		if p.AvatarURL != "" {
			fmt.Fprintf(out, "  avatar: %s\n", p.AvatarURL)
		}
		fmt.Fprintf(out, "  since:  %s\n", humanize.Time(p.CreatedAt))
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change profile fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		var u profile.Update
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			u.FullName = &v
		}
		if cmd.Flags().Changed("avatar") {
			v, _ := cmd.Flags().GetString("avatar")
			u.AvatarURL = &v
		}
		if u.FullName == nil && u.AvatarURL == nil {
			return errors.New("nothing to change, pass --name or --avatar")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := a.resume(cmd.Context()); err != nil {
			return err
		}
		p, err := a.client.UpdateProfile(cmd.Context(), u)
		if err != nil {
			return err
		}
		printSuccess("Profile updated for %s", p.DisplayName())
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("name", "", "full name")
	profileSetCmd.Flags().String("avatar", "", "avatar URL")
	profileCmd.AddCommand(profileSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve job tools to an MCP client over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := a.resume(cmd.Context()); err != nil {
			return err
		}
		return server.ServeStdio(api.NewMCPServer(api.MCPDeps{Jobs: a.jobs, Version: version}))
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", ") + ".\n" +
		"storage.postgres_dsn is stored in the OS keychain.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
