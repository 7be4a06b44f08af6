package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/app"
	"github.com/nspcc-dev/place-ratings/signer"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"github.com/urfave/cli/v2"
)

func averageCommand() *cli.Command {
	return &cli.Command{
		Name:      "average",
		Usage:     "Print average ratings of the places",
		ArgsUsage: "[place ID]",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "place", Aliases: []string{"p"}, Usage: "Place ID, all places if omitted"},
		},
		Action: func(c *cli.Context) error {
			d, err := setup(c)
			if err != nil {
				return err
			}
			defer d.close()

			svc, err := d.service(nil)
			if err != nil {
				return err
			}

			w := c.App.Writer

			if id := c.Uint64("place"); id != 0 {
				v, err := svc.Place(c.Context, id)
				if err != nil {
					return err
				}
				printPlace(w, v)
				return nil
			}

			for _, v := range svc.Places(c.Context) {
				printPlace(w, v)
			}
			return nil
		},
	}
}

func printPlace(w io.Writer, v app.PlaceView) {
	fmt.Fprintf(w, "%3d  %-28s %s\n", v.ID, v.Title, v.Rating())
}

func mineCommand() *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "Print places rated by the identity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Usage: "Identity address, wallet account if omitted"},
			&cli.StringFlag{Name: "sort", Value: "desc", Usage: "Order by own score: asc or desc"},
			&cli.StringFlag{Name: "filter", Value: "all", Usage: "Filter by own score: all, 4plus or 5"},
			&cli.IntFlag{Name: "limit", Value: app.PageSize, Usage: "Number of first places to check"},
		},
		Action: func(c *cli.Context) error {
			q := app.MyRatingsQuery{Limit: c.Int("limit")}

			var err error
			if q.Sort, err = app.ParseSortOrder(c.String("sort")); err != nil {
				return err
			}
			if q.Filter, err = app.ParseFilter(c.String("filter")); err != nil {
				return err
			}

			d, err := setup(c)
			if err != nil {
				return err
			}
			defer d.close()

			q.Identity, err = d.identity(c)
			if err != nil {
				return err
			}

			svc, err := d.service(nil)
			if err != nil {
				return err
			}

			res := svc.MyRatings(c.Context, q)

			w := c.App.Writer
			if len(res.Entries) == 0 {
				fmt.Fprintln(w, "No ratings among checked places.")
			}
			for _, e := range res.Entries {
				fmt.Fprintf(w, "%3d  %-28s %d  avg %s %s\n", e.Place.ID, e.Place.Title, e.Stars, e.Average.Precise(), e.Trend)
			}
			if res.More {
				fmt.Fprintf(w, "Checked %d places, use --limit %d to see more.\n", res.Checked, res.Checked+app.PageSize)
			}
			return nil
		},
	}
}

// identity returns identity from the flag or the only wallet account.
func (d *deps) identity(c *cli.Context) (util.Uint160, error) {
	if s := c.String("identity"); s != "" {
		h, err := address.StringToUint160(s)
		if err != nil {
			return util.Uint160{}, fmt.Errorf("invalid identity address: %w", err)
		}
		return h, nil
	}

	accs, err := openAccounts(d.cfg.Wallet)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("no identity given: %w", err)
	}
	if len(accs) > 1 {
		return util.Uint160{}, errors.New("wallet has several accounts, specify identity")
	}

	return accs[0].ScriptHash(), nil
}

func rateCommand() *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate the place on behalf of the wallet identity",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "place", Aliases: []string{"p"}, Required: true, Usage: "Place ID"},
			&cli.UintFlag{Name: "score", Aliases: []string{"s"}, Required: true, Usage: "Score from 1 to 5"},
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Usage: "Identity address, wallet account if omitted"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Sign without confirmation"},
		},
		Action: func(c *cli.Context) error {
			stars := c.Uint("score")
			if stars > 255 {
				return fmt.Errorf("invalid score %d", stars)
			}

			d, err := setup(c)
			if err != nil {
				return err
			}
			defer d.close()

			identity, err := d.identity(c)
			if err != nil {
				return err
			}

			var confirm func(context.Context, typeddata.Message) error
			if !c.Bool("yes") {
				confirm = prompt(c.App.Reader, c.App.Writer)
			}

			s, err := d.walletSigner(confirm, true)
			if err != nil {
				return err
			}

			coord, err := d.coordinator(s)
			if err != nil {
				return err
			}

			svc, err := d.service(coord)
			if err != nil {
				return err
			}

			out, err := svc.Rate(c.Context, identity, c.Uint64("place"), uint8(stars))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Rating accepted in %s, new average %s\n", out.Receipt.Hash.StringLE(), out.Average)
			return nil
		},
	}
}

// prompt asks user to confirm message signing.
func prompt(r io.Reader, w io.Writer) func(context.Context, typeddata.Message) error {
	if r == nil {
		r = os.Stdin
	}
	in := bufio.NewReader(r)

	return func(_ context.Context, msg typeddata.Message) error {
		fmt.Fprintf(w, "Sign rating of place %d with %d stars for %s (message %s, valid until %d)? [y/N] ",
			msg.Rating.SubjectID, msg.Rating.Score, address.Uint160ToString(msg.Rating.Identity),
			msg.ID(), msg.Rating.Deadline)

		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		default:
			return signer.ErrDeclined
		}
	}
}
