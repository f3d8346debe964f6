package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fjod/homeservices/storefront/booking"
	"github.com/fjod/homeservices/storefront/catalog"
	"github.com/fjod/homeservices/storefront/checkout"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/spf13/cobra"
)

var errLineCap = fmt.Errorf("at most %d of a service can be booked at once", checkout.MaxLineCount)

func (r *runner) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Browse categories, packages and time slots"}

	cmd.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "List service categories",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			cats, err := a.catalog.Categories(cmd.Context())
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME")
			for _, c := range cats {
				fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Name)
			}
			return w.Flush()
		}),
	})

	var category string
	packages := &cobra.Command{
		Use:   "packages",
		Short: "List service packages",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			pkgs, err := a.catalog.Packages(cmd.Context(), category)
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tADDONS")
			for _, p := range pkgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category, price.Format(p.Price.Float64()), len(p.Addons))
			}
			return w.Flush()
		}),
	}
	packages.Flags().StringVar(&category, "category", "", "only packages in this category")
	cmd.AddCommand(packages)

	cmd.AddCommand(&cobra.Command{
		Use:   "slots",
		Short: "List bookable time slots",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			slots, err := a.catalog.Slots(cmd.Context())
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tTIME\tEXTRA")
			for _, s := range slots {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Label, price.Format(s.ExtraCharge.Float64()))
			}
			return w.Flush()
		}),
	})
	return cmd
}

func (r *runner) cartCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cart", Short: "Manage the cart"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			return printCart(cmd.OutOrStdout(), a)
		}),
	})

	var (
		addons   []string
		override float64
		count    int
	)
	add := &cobra.Command{
		Use:   "add <package-id>",
		Short: "Add a package to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(cmd *cobra.Command, a *app, args []string) error {
			pkg, err := a.catalog.Package(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			line, err := catalog.LineFromPackage(pkg, addons, override)
			if err != nil {
				return err
			}
			line.Count = count
			if count < 1 {
				return errors.New("count must be at least 1")
			}
			existing, inCart := a.cart.Line(line.ProductID)
			if existing.Count+count > checkout.MaxLineCount {
				return errLineCap
			}
			if inCart && !cmd.Flags().Changed("addon") && override == 0 {
				// keep whatever was chosen when the line was first added
				line.Content, line.SavedSelections = nil, nil
			}
			a.cart.AddItem(cmd.Context(), line)
			return printCart(cmd.OutOrStdout(), a)
		}),
	}
	add.Flags().StringArrayVar(&addons, "addon", nil, "addon to include (repeatable)")
	add.Flags().Float64Var(&override, "price", 0, "unit price override, e.g. a discounted price")
	add.Flags().IntVar(&count, "count", 1, "units to add")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "update <product-id> <count>",
		Short: "Set a line's count; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: r.run(func(cmd *cobra.Command, a *app, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be a number: %w", err)
			}
			if n > checkout.MaxLineCount {
				return errLineCap
			}
			a.cart.UpdateItem(cmd.Context(), args[0], n)
			return printCart(cmd.OutOrStdout(), a)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(cmd *cobra.Command, a *app, args []string) error {
			a.cart.RemoveItem(cmd.Context(), args[0])
			return printCart(cmd.OutOrStdout(), a)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.cart.Clear(cmd.Context()); err != nil {
				a.log.Warn(cmd.Context(), "cart cleared in memory only", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cart cleared.")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Reconcile the cart with the server copy",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			if a.syncer == nil {
				return errors.New("sign in to sync the cart")
			}
			a.syncer.PullAll(cmd.Context())
			return printCart(cmd.OutOrStdout(), a)
		}),
	})
	return cmd
}

func (r *runner) addressCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "address", Short: "Manage the service address"}

	var addr domain.Address
	set := &cobra.Command{
		Use:   "set",
		Short: "Select the address the visit goes to",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.selections.SetAddress(cmd.Context(), addr); err != nil {
				a.log.Warn(cmd.Context(), "address selected for this session only", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAddress(addr))
			return nil
		}),
	}
	set.Flags().StringVar(&addr.Label, "label", "", "short name, e.g. Home")
	set.Flags().StringVar(&addr.Line1, "line1", "", "street address")
	set.Flags().StringVar(&addr.Line2, "line2", "", "apartment, landmark")
	set.Flags().StringVar(&addr.City, "city", "", "city")
	set.Flags().StringVar(&addr.Pincode, "pincode", "", "postal code")
	_ = set.MarkFlagRequired("line1")
	_ = set.MarkFlagRequired("city")
	_ = set.MarkFlagRequired("pincode")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the selected address",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			addr, ok := a.selections.Address()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No address selected.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAddress(addr))
			return nil
		}),
	})
	return cmd
}

// checkoutFlags are the ephemeral checkout choices; they only live for the
// command they are given to.
type checkoutFlags struct {
	date      string
	slot      string
	tip       float64
	customTip float64
}

func (f *checkoutFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "visit date, e.g. 2026-10-20")
	cmd.Flags().StringVar(&f.slot, "slot", "", "time slot id (see catalog slots)")
	cmd.Flags().Float64Var(&f.tip, "tip", 0, "tip preset: 50, 75 or 100")
	cmd.Flags().Float64Var(&f.customTip, "custom-tip", 0, "custom tip, at least 25")
}

func (f *checkoutFlags) apply(cmd *cobra.Command, a *app) error {
	if f.slot != "" {
		slots, err := a.catalog.Slots(cmd.Context())
		if err != nil {
			return err
		}
		found := false
		for _, s := range slots {
			if s.ID == f.slot {
				a.selections.SelectSlot(s)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown time slot %q", f.slot)
		}
	}
	a.selections.SetDate(f.date)
	a.selections.SetTip(checkout.ResolveTip(f.tip, f.customTip, cmd.Flags().Changed("custom-tip")))
	return nil
}

func (r *runner) totalsCmd() *cobra.Command {
	var flags checkoutFlags
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show the checkout charges",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := flags.apply(cmd, a); err != nil {
				return err
			}
			t := checkout.Calculate(a.cart.Items(), a.selections.Tip(), a.selections.SlotSurcharge())
			printTotals(cmd.OutOrStdout(), t)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func (r *runner) bookCmd() *cobra.Command {
	var flags checkoutFlags
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Place a booking for everything in the cart",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := flags.apply(cmd, a); err != nil {
				return err
			}
			conf, err := a.submitter().PlaceOrder(cmd.Context())
			var verr *booking.ValidationError
			if errors.As(err, &verr) {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Cannot place the booking yet:")
				for _, reason := range verr.Reasons {
					fmt.Fprintf(out, "  - %s\n", reason)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booking %s placed at %s.\n", conf.ID, conf.PlacedAt.Local().Format("02 Jan 2006 15:04"))
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func (r *runner) bookingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bookings", Short: "Booking history"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List past bookings",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, a *app, _ []string) error {
			recs, err := a.bookings.List(cmd.Context())
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tDATE\tSLOT\tITEMS\tTOTAL")
			for _, b := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.Slot.Date, b.Slot.Time, len(b.Items), price.Format(b.Charges.Total))
			}
			return w.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <booking-id>",
		Short: "Show one booking",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(cmd *cobra.Command, a *app, args []string) error {
			b, err := a.bookings.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Booking %s for %s on %s (%s)\n", b.ID, b.Customer.Email, b.Slot.Date, b.Slot.Time)
			fmt.Fprintln(out, formatAddress(b.Address))
			w := table(out)
			for _, it := range b.Items {
				fmt.Fprintf(w, "%s\tx%d\t%s\n", it.Title, it.Count, price.Format(it.Subtotal))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			printTotals(out, b.Charges)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <booking-id>",
		Short: "Remove a booking from the history",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.bookings.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booking %s removed.\n", args[0])
			return nil
		}),
	})
	return cmd
}

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func printCart(out io.Writer, a *app) error {
	items := a.cart.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "Your cart is empty.")
		return nil
	}
	w := table(out)
	fmt.Fprintln(w, "PRODUCT\tTITLE\tPRICE\tCOUNT\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", it.ProductID, it.Title, price.Format(it.Price.Float64()), it.Count, price.Format(it.Subtotal()))
	}
	fmt.Fprintf(w, "\t\t\t%d\t%s\n", a.cart.Count(), price.Format(a.cart.Total()))
	return w.Flush()
}

func printTotals(out io.Writer, t domain.Totals) {
	w := table(out)
	fmt.Fprintf(w, "Item total\t%s\n", price.Format(t.ItemTotal))
	fmt.Fprintf(w, "Taxes and fee\t%s\n", price.Format(t.Tax))
	if t.Tip > 0 {
		fmt.Fprintf(w, "Tip\t%s\n", price.Format(t.Tip))
	}
	if t.SlotSurcharge > 0 {
		fmt.Fprintf(w, "Slot charge\t%s\n", price.Format(t.SlotSurcharge))
	}
	fmt.Fprintf(w, "Total\t%s\n", price.Format(t.Total))
	_ = w.Flush()
}

func formatAddress(a domain.Address) string {
	s := a.Line1
	if a.Line2 != "" {
		s += ", " + a.Line2
	}
	s += ", " + a.City + " " + a.Pincode
	if a.Label != "" {
		s = a.Label + ": " + s
	}
	return s
}
