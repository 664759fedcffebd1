// Package main is the registry administration CLI. Each command builds
// one Change-DB operation and posts it to the writer's cluster port.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/offenes-grundbuch/registry/internal/changedb"
	"github.com/offenes-grundbuch/registry/internal/cluster"
	"github.com/offenes-grundbuch/registry/internal/models"
)

func main() {
	app := &cli.App{
		Name:  "registryctl",
		Usage: "administer a Grundbuch registry cluster",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "writer",
				Usage:   "base URL of the writer's cluster port",
				Value:   "http://localhost:8081",
				EnvVars: []string{"GRUNDBUCH_WRITER_PEER_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			createDistrictCommand(),
			deleteDistrictCommand(),
			createUserCommand(),
			deleteUserCommand(),
			createSubscriptionCommand(),
			deleteSubscriptionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// apply posts one operation to the writer.
func apply(c *cli.Context, op *changedb.Op) error {
	body, err := json.Marshal(op)
	if err != nil {
		return err
	}
	client := cluster.NewClient(c.Duration("timeout"))
	writer := strings.TrimRight(c.String("writer"), "/")
	if err := client.ApplyChange(c.Context, writer, body); err != nil {
		return fmt.Errorf("%s failed: %w", op.Kind, err)
	}
	fmt.Println("ok")
	return nil
}

func createDistrictCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-district",
		Usage: "add a district to the namespace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "land", Required: true},
			&cli.StringFlag{Name: "amtsgericht", Required: true},
			&cli.StringFlag{Name: "bezirk", Required: true},
		},
		Action: func(c *cli.Context) error {
			return apply(c, &changedb.Op{
				Kind: changedb.OpCreateDistrict,
				CreateDistrict: &changedb.CreateDistrict{
					District: models.District{
						Land:        c.String("land"),
						Amtsgericht: c.String("amtsgericht"),
						Bezirk:      c.String("bezirk"),
					},
				},
			})
		},
	}
}

func deleteDistrictCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-district",
		Usage: "remove a district from the namespace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amtsgericht", Required: true},
			&cli.StringFlag{Name: "bezirk", Required: true},
		},
		Action: func(c *cli.Context) error {
			return apply(c, &changedb.Op{
				Kind: changedb.OpDeleteDistricts,
				DeleteDistricts: &changedb.DeleteDistricts{
					Districts: []models.District{{
						Amtsgericht: c.String("amtsgericht"),
						Bezirk:      c.String("bezirk"),
					}},
				},
			})
		},
	}
}

func createUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "create or replace an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "role", Value: "guest", Usage: "admin, editor or guest"},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.PathFlag{Name: "pubkey", Usage: "path to an OpenPGP public key to register"},
		},
		Action: func(c *cli.Context) error {
			role := models.Role(c.String("role"))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", c.String("role"))
			}

			err := apply(c, &changedb.Op{
				Kind: changedb.OpCreateUser,
				CreateUser: &changedb.CreateUser{
					Email:    c.String("email"),
					Name:     c.String("name"),
					Role:     role,
					Password: c.String("password"),
				},
			})
			if err != nil {
				return err
			}

			if path := c.Path("pubkey"); path != "" {
				keyData, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read public key: %w", err)
				}
				return apply(c, &changedb.Op{
					Kind: changedb.OpChangePubKey,
					ChangePubKey: &changedb.ChangePubKey{
						Email:   c.String("email"),
						KeyData: keyData,
					},
				})
			}
			return nil
		},
	}
}

func deleteUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-user",
		Usage: "delete an account and everything keyed to it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
		},
		Action: func(c *cli.Context) error {
			return apply(c, &changedb.Op{
				Kind:       changedb.OpDeleteUser,
				DeleteUser: &changedb.DeleteUser{Email: c.String("email")},
			})
		},
	}
}

func subscriptionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "kind", Required: true, Usage: "email or webhook"},
		&cli.StringFlag{Name: "target", Required: true},
		&cli.StringFlag{Name: "amtsgericht", Required: true},
		&cli.StringFlag{Name: "bezirk", Required: true},
		&cli.IntFlag{Name: "blatt", Required: true},
	}
}

func createSubscriptionCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-subscription",
		Usage: "register a notification subscription",
		Flags: append(subscriptionFlags(),
			&cli.StringFlag{Name: "reference", Usage: "Aktenzeichen echoed in deliveries"}),
		Action: func(c *cli.Context) error {
			kind := models.SubscriptionKind(c.String("kind"))
			if !kind.Valid() {
				return fmt.Errorf("unknown subscription kind %q", c.String("kind"))
			}
			sub := models.Subscription{
				Kind:        kind,
				Target:      c.String("target"),
				Amtsgericht: c.String("amtsgericht"),
				Bezirk:      c.String("bezirk"),
				Blatt:       c.Int("blatt"),
			}
			if ref := c.String("reference"); ref != "" {
				sub.Reference = &ref
			}
			return apply(c, &changedb.Op{
				Kind:               changedb.OpCreateSubscription,
				CreateSubscription: &changedb.CreateSubscription{Subscription: sub},
			})
		},
	}
}

func deleteSubscriptionCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-subscription",
		Usage: "remove a notification subscription",
		Flags: subscriptionFlags(),
		Action: func(c *cli.Context) error {
			kind := models.SubscriptionKind(c.String("kind"))
			if !kind.Valid() {
				return fmt.Errorf("unknown subscription kind %q", c.String("kind"))
			}
			return apply(c, &changedb.Op{
				Kind: changedb.OpDeleteSubscription,
				DeleteSubscription: &changedb.DeleteSubscription{
					Kind:   kind,
					Target: c.String("target"),
					Key: models.DocumentKey{
						Amtsgericht: c.String("amtsgericht"),
						Bezirk:      c.String("bezirk"),
						Blatt:       c.Int("blatt"),
					},
				},
			})
		},
	}
}
