package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/defistate/defistate-amm-go/amm"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/jsonrpc/client"
	"github.com/defistate/defistate-amm-go/patcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const (
	defaultRPCURL          = "http://127.0.0.1:8645"
	defaultWatchBufferSize = 100
)

type poolFlags struct {
	rpcURL string
}

func newPoolCmd() *cobra.Command {
	f := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Operate on pools of a running ammd",
	}
	cmd.PersistentFlags().StringVar(&f.rpcURL, "rpc", defaultRPCURL, "JSON-RPC endpoint (http or ws).")

	cmd.AddCommand(
		f.initCmd(),
		f.depositCmd(),
		f.withdrawCmd(),
		f.swapCmd(),
		f.lockCmd("lock", true),
		f.lockCmd("unlock", false),
		f.getCmd(),
		f.listCmd(),
		f.pairCmd(),
		f.quoteCmd(),
		f.balanceCmd(),
		f.sharesCmd(),
		f.fundCmd(),
		f.watchCmd(),
	)
	return cmd
}

// withClient dials the endpoint for the duration of fn.
func (f *poolFlags) withClient(cmd *cobra.Command, fn func(c *client.Client) error) error {
	c, err := client.Dial(cmd.Context(), f.rpcURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.rpcURL, err)
	}
	defer c.Close()
	return fn(c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func parseSide(s string) (bool, error) {
	switch s {
	case "x", "X":
		return true, nil
	case "y", "Y":
		return false, nil
	}
	return false, fmt.Errorf("invalid side %q: want x or y", s)
}

// poolAccountArgs parses the leading <pool> <account> arguments shared by the
// mutating commands.
func poolAccountArgs(args []string) (engine.PoolID, common.Address, error) {
	id, err := engine.ParsePoolID(args[0])
	if err != nil {
		return engine.PoolID{}, common.Address{}, err
	}
	account, err := parseAddress("account", args[1])
	return id, account, err
}

func parseAmounts(names []string, args []string) ([]uint64, error) {
	out := make([]uint64, len(names))
	for i, name := range names {
		v, err := parseAmount(name, args[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *poolFlags) initCmd() *cobra.Command {
	var (
		seed       uint64
		feeBps     uint16
		lpDecimals uint8
		authority  string
	)
	cmd := &cobra.Command{
		Use:   "init <mintX> <mintY>",
		Short: "Create a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mintX, err := parseAddress("mintX", args[0])
			if err != nil {
				return err
			}
			mintY, err := parseAddress("mintY", args[1])
			if err != nil {
				return err
			}
			p := amm.InitializeParams{Seed: seed, MintX: mintX, MintY: mintY, FeeBps: feeBps, LPDecimals: lpDecimals}
			if authority != "" {
				a, err := parseAddress("authority", authority)
				if err != nil {
					return err
				}
				p.Authority = &a
			}
			return f.withClient(cmd, func(c *client.Client) error {
				id, err := c.Initialize(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.String())
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed distinguishing pools over the same pair.")
	cmd.Flags().Uint16Var(&feeBps, "fee", 30, "Swap fee in basis points.")
	cmd.Flags().Uint8Var(&lpDecimals, "lp-decimals", 0, "LP token decimals (0 selects the default).")
	cmd.Flags().StringVar(&authority, "authority", "", "Address allowed to lock the pool.")
	return cmd
}

func (f *poolFlags) depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <pool> <account> <lpAmount> <maxX> <maxY>",
		Short: "Add liquidity for an exact number of LP shares",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, account, err := poolAccountArgs(args)
			if err != nil {
				return err
			}
			v, err := parseAmounts([]string{"lpAmount", "maxX", "maxY"}, args[2:])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				res, err := c.Deposit(cmd.Context(), id, account, v[0], v[1], v[2])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func (f *poolFlags) withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <pool> <account> <lpAmount> <minX> <minY>",
		Short: "Burn LP shares for a proportional share of the reserves",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, account, err := poolAccountArgs(args)
			if err != nil {
				return err
			}
			v, err := parseAmounts([]string{"lpAmount", "minX", "minY"}, args[2:])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				res, err := c.Withdraw(cmd.Context(), id, account, v[0], v[1], v[2])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func (f *poolFlags) swapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <pool> <account> <x|y> <amountIn> <minOut>",
		Short: "Swap the given side in for the other",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, account, err := poolAccountArgs(args)
			if err != nil {
				return err
			}
			isX, err := parseSide(args[2])
			if err != nil {
				return err
			}
			v, err := parseAmounts([]string{"amountIn", "minOut"}, args[3:])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				res, err := c.Swap(cmd.Context(), id, account, isX, v[0], v[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func (f *poolFlags) lockCmd(use string, locked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pool> <authority>",
		Short: "Set the pool lock flag to " + strconv.FormatBool(locked),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, caller, err := poolAccountArgs(args)
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				return c.SetLocked(cmd.Context(), id, locked, caller)
			})
		},
	}
}

func (f *poolFlags) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <pool>",
		Short: "Show a pool's configuration and reserves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := engine.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				p, err := c.Pool(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func (f *poolFlags) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withClient(cmd, func(c *client.Client) error {
				pools, err := c.Pools(cmd.Context())
				if err != nil {
					return err
				}
				printPoolTable(cmd.OutOrStdout(), pools)
				return nil
			})
		},
	}
}

func printPoolTable(out io.Writer, pools []engine.Pool) {
	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL\tMINT X\tMINT Y\tFEE\tRESERVE X\tRESERVE Y\tLP SUPPLY\tSTATUS\t")
	for _, p := range pools {
		status := "active"
		if p.Config.Locked {
			status = "locked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t\n",
			p.ID, p.Config.MintX.Hex(), p.Config.MintY.Hex(), p.Config.FeeBps,
			p.Reserves.ReserveX, p.Reserves.ReserveY, p.Reserves.LPSupply, status)
	}
	w.Flush()
}

func (f *poolFlags) pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs <mintA> <mintB>",
		Short: "List the pools trading a pair, in either order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAddress("mintA", args[0])
			if err != nil {
				return err
			}
			b, err := parseAddress("mintB", args[1])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				ids, err := c.PoolsForPair(cmd.Context(), a, b)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id.String())
				}
				return nil
			})
		},
	}
}

func (f *poolFlags) quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview an operation without committing it",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "deposit <pool> <lpAmount> <maxX> <maxY>",
			Args: cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := engine.ParsePoolID(args[0])
				if err != nil {
					return err
				}
				v, err := parseAmounts([]string{"lpAmount", "maxX", "maxY"}, args[1:])
				if err != nil {
					return err
				}
				return f.withClient(cmd, func(c *client.Client) error {
					q, err := c.QuoteDeposit(cmd.Context(), id, v[0], v[1], v[2])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), q)
				})
			},
		},
		&cobra.Command{
			Use:  "withdraw <pool> <lpAmount>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := engine.ParsePoolID(args[0])
				if err != nil {
					return err
				}
				lp, err := parseAmount("lpAmount", args[1])
				if err != nil {
					return err
				}
				return f.withClient(cmd, func(c *client.Client) error {
					q, err := c.QuoteWithdraw(cmd.Context(), id, lp)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), q)
				})
			},
		},
		&cobra.Command{
			Use:  "swap <pool> <x|y> <amountIn>",
			Args: cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := engine.ParsePoolID(args[0])
				if err != nil {
					return err
				}
				isX, err := parseSide(args[1])
				if err != nil {
					return err
				}
				in, err := parseAmount("amountIn", args[2])
				if err != nil {
					return err
				}
				return f.withClient(cmd, func(c *client.Client) error {
					out, err := c.QuoteSwap(cmd.Context(), id, isX, in)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), out)
					return nil
				})
			},
		},
	)
	return cmd
}

func (f *poolFlags) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account> <asset>",
		Short: "Show an account's asset balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAddress("account", args[0])
			if err != nil {
				return err
			}
			asset, err := parseAddress("asset", args[1])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				v, err := c.Balance(cmd.Context(), account, asset)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func (f *poolFlags) sharesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shares <pool> <account>",
		Short: "Show an account's LP shares in a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, account, err := poolAccountArgs(args)
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				v, err := c.Shares(cmd.Context(), id, account)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func (f *poolFlags) fundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <account> <asset> <amount>",
		Short: "Credit an account from the faucet",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAddress("account", args[0])
			if err != nil {
				return err
			}
			asset, err := parseAddress("asset", args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[2])
			if err != nil {
				return err
			}
			return f.withClient(cmd, func(c *client.Client) error {
				return c.Fund(cmd.Context(), account, asset, amount)
			})
		},
	}
}

func (f *poolFlags) watchCmd() *cobra.Command {
	var (
		poolArg string
		table   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream committed pool events until interrupted (websocket endpoint)",
		Long: `Stream committed pool events until interrupted.

With --table the pools are mirrored locally and the whole table is redrawn
after every event instead of printing one row per event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			cfg := client.WatcherConfig{
				URL:        f.rpcURL,
				Logger:     logger,
				BufferSize: defaultWatchBufferSize,
			}
			if poolArg != "" {
				id, err := engine.ParsePoolID(poolArg)
				if err != nil {
					return err
				}
				cfg.Pool = &id
			}
			w, err := client.NewWatcher(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if table {
				return f.withClient(cmd, func(c *client.Client) error {
					return mirrorPools(cmd, c, w, logger)
				})
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 4, ' ', 0)
			fmt.Fprintln(out, "POOL\tKIND\tACCOUNT\tAMOUNT X\tAMOUNT Y\tLP\tRESERVE X\tRESERVE Y\t")
			out.Flush()
			for {
				select {
				case ev := <-w.Events():
					fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t\n",
						ev.Pool, ev.Kind, ev.Account.Hex(), ev.AmountX, ev.AmountY, ev.LPAmount,
						ev.Reserves.ReserveX, ev.Reserves.ReserveY)
					out.Flush()
				case err := <-w.Err():
					return watchStopped(cmd, err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&poolArg, "pool", "", "Only show events for this pool.")
	cmd.Flags().BoolVar(&table, "table", false, "Redraw a live pool table instead of printing events.")
	return cmd
}

func watchStopped(cmd *cobra.Command, err error) error {
	if cmd.Context().Err() != nil {
		return nil
	}
	return err
}

// mirrorPools keeps a local snapshot of every pool in step with w and redraws
// it after each event. Events the snapshot already reflects are skipped; any
// other patch failure reloads the snapshot, which carries each pool's sequence.
func mirrorPools(cmd *cobra.Command, c *client.Client, w *client.Watcher, logger *slog.Logger) error {
	ctx := cmd.Context()
	p, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{Fetch: c.Pool})
	if err != nil {
		return err
	}
	load := func() (*patcher.Snapshot, error) {
		pools, err := c.Pools(ctx)
		if err != nil {
			return nil, err
		}
		return patcher.NewSnapshot(pools), nil
	}

	snap, err := load()
	if err != nil {
		return err
	}
	redraw(cmd.OutOrStdout(), snap)
	for {
		select {
		case ev := <-w.Events():
			next, err := p.Patch(ctx, snap, ev)
			if errors.Is(err, patcher.ErrStaleEvent) {
				logger.Debug("skipping stale event", "pool", ev.Pool, "kind", ev.Kind, "seq", ev.Seq)
				continue
			}
			if err != nil {
				logger.Warn("snapshot out of step, reloading", "pool", ev.Pool, "kind", ev.Kind, "error", err)
				if next, err = load(); err != nil {
					return err
				}
			}
			snap = next
			redraw(cmd.OutOrStdout(), snap)
		case err := <-w.Err():
			return watchStopped(cmd, err)
		}
	}
}

func redraw(out io.Writer, snap *patcher.Snapshot) {
	pools := make([]engine.Pool, 0, len(snap.Pools))
	for _, p := range snap.Pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return bytes.Compare(pools[i].ID[:], pools[j].ID[:]) < 0
	})
	fmt.Fprint(out, "\033[H\033[2J")
	printPoolTable(out, pools)
}
