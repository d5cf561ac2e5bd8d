package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/land-registry/api/clients"
	"github.com/ruteri/land-registry/cmd/flags"
	"github.com/ruteri/land-registry/cryptoutils"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/urfave/cli/v2"
)

// Parcels minted by the seed command, one per default supply slot.
var seedParcels = []interfaces.Coordinates{
	{X: 1, Y: 2, Area: 3},
	{X: 5, Y: 4, Area: 7},
	{X: 9, Y: 10, Area: 11},
}

var idFlag = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "parcel id",
}

var addressFlag = &cli.StringFlag{
	Name:  "address",
	Usage: "account address, defaults to the caller",
}

func main() {
	app := &cli.App{
		Name:  "land-client",
		Usage: "Interact with the land parcel registry",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flags.PrivateKeyFlag,
			flags.CallerFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "collection",
				Usage:  "Show collection parameters",
				Action: withClient(func(c *clients.LandClient, _ *cli.Context) (any, error) { return c.Collection() }),
			},
			{
				Name:  "mint",
				Usage: "Mint a parcel (admin only)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "metadata", Required: true, Usage: "opaque metadata, conventionally \"x,y,area\""},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					return c.Mint(cCtx.String("metadata"))
				}),
			},
			{
				Name:  "seed",
				Usage: "Mint the reference parcels (admin only)",
				Action: withClient(func(c *clients.LandClient, _ *cli.Context) (any, error) {
					minted := make([]interfaces.ParcelID, 0, len(seedParcels))
					for _, coords := range seedParcels {
						resp, err := c.Mint(interfaces.EncodeMetadata(coords))
						if err != nil {
							return minted, err
						}
						minted = append(minted, resp.ID)
					}
					return minted, nil
				}),
			},
			{
				Name:  "buy",
				Usage: "Purchase a listed parcel",
				Flags: []cli.Flag{
					idFlag,
					&cli.StringFlag{Name: "amount", Value: "1", Usage: "payment in ether, or wei with a \"wei\" suffix"},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					id, err := interfaces.ParseParcelID(cCtx.String("id"))
					if err != nil {
						return nil, err
					}
					amount, err := flags.ParseEther(cCtx.String("amount"))
					if err != nil {
						return nil, err
					}
					return c.Purchase(id, (*hexutil.Big)(amount))
				}),
			},
			{
				Name:  "resell",
				Usage: "List an owned parcel for sale",
				Flags: []cli.Flag{
					idFlag,
					&cli.StringFlag{Name: "price", Required: true, Usage: "asking price in ether, or wei with a \"wei\" suffix"},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					id, err := interfaces.ParseParcelID(cCtx.String("id"))
					if err != nil {
						return nil, err
					}
					price, err := flags.ParseEther(cCtx.String("price"))
					if err != nil {
						return nil, err
					}
					return c.Resell(id, (*hexutil.Big)(price))
				}),
			},
			{
				Name:  "details",
				Usage: "Show a parcel",
				Flags: []cli.Flag{idFlag},
				Action: withParcel(func(c *clients.LandClient, id interfaces.ParcelID) (any, error) {
					return c.Parcel(id)
				}),
			},
			{
				Name:  "list",
				Usage: "List parcels",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "listed", Usage: "only parcels currently for sale"},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					return c.Parcels(cCtx.Bool("listed"))
				}),
			},
			{
				Name:  "owner",
				Usage: "Show the current owner of a parcel",
				Flags: []cli.Flag{idFlag},
				Action: withParcel(func(c *clients.LandClient, id interfaces.ParcelID) (any, error) {
					return c.Owner(id)
				}),
			},
			{
				Name:  "owners",
				Usage: "Show the ownership history of a parcel",
				Flags: []cli.Flag{idFlag},
				Action: withParcel(func(c *clients.LandClient, id interfaces.ParcelID) (any, error) {
					return c.Owners(id)
				}),
			},
			{
				Name:  "uri",
				Usage: "Show the metadata of a parcel",
				Flags: []cli.Flag{idFlag},
				Action: withParcel(func(c *clients.LandClient, id interfaces.ParcelID) (any, error) {
					return c.TokenURI(id)
				}),
			},
			{
				Name:   "total",
				Usage:  "Show the number of minted parcels",
				Action: withClient(func(c *clients.LandClient, _ *cli.Context) (any, error) { return c.Total() }),
			},
			{
				Name:  "balance",
				Usage: "Show an account's balance and parcels",
				Flags: []cli.Flag{addressFlag},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					addr := c.Caller
					if raw := cCtx.String("address"); raw != "" {
						parsed, err := interfaces.NewAddressFromHex(raw)
						if err != nil {
							return nil, err
						}
						addr = parsed
					}
					return c.Account(addr)
				}),
			},
			{
				Name:  "credit",
				Usage: "Fund an account (admin only)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Required: true, Usage: "account to fund"},
					&cli.StringFlag{Name: "amount", Required: true, Usage: "amount in ether, or wei with a \"wei\" suffix"},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					addr, err := interfaces.NewAddressFromHex(cCtx.String("address"))
					if err != nil {
						return nil, err
					}
					amount, err := flags.ParseEther(cCtx.String("amount"))
					if err != nil {
						return nil, err
					}
					return c.Credit(addr, (*hexutil.Big)(amount))
				}),
			},
			{
				Name:  "events",
				Usage: "Show change records after a sequence number",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "since", Usage: "last sequence number already seen"},
				},
				Action: withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
					return c.Events(cCtx.Uint64("since"))
				}),
			},
			{
				Name:   "checkpoint",
				Usage:  "Persist a checkpoint now (admin only)",
				Action: withClient(func(c *clients.LandClient, _ *cli.Context) (any, error) { return c.Checkpoint() }),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*clients.LandClient, error) {
	client := clients.NewLandClient(cCtx.String(flags.ServerAddrFlag.Name))

	if raw := cCtx.String(flags.PrivateKeyFlag.Name); raw != "" {
		key, err := cryptoutils.LoadPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		return client.WithKey(key), nil
	}

	if raw := cCtx.String(flags.CallerFlag.Name); raw != "" {
		caller, err := interfaces.NewAddressFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid caller: %w", err)
		}
		client.Caller = caller
	}
	return client, nil
}

func withClient(fn func(*clients.LandClient, *cli.Context) (any, error)) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		client, err := newClient(cCtx)
		if err != nil {
			return err
		}
		out, err := fn(client, cCtx)
		if err != nil {
			var apiErr *clients.APIError
			if errors.As(err, &apiErr) {
				return cli.Exit(apiErr.Message, 1)
			}
			return err
		}
		return printJSON(out)
	}
}

func withParcel(fn func(*clients.LandClient, interfaces.ParcelID) (any, error)) cli.ActionFunc {
	return withClient(func(c *clients.LandClient, cCtx *cli.Context) (any, error) {
		id, err := interfaces.ParseParcelID(cCtx.String("id"))
		if err != nil {
			return nil, err
		}
		return fn(c, id)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
