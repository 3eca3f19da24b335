package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
)

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Advance the actor's view of the world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				res, err := e.Tick(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOr(res, func(w io.Writer) {
					fmt.Fprintf(w, "TRP +%d, %d expired, %d resolved\n", res.TRP, res.Expired, res.Resolved)
				})
			})
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the actor's profile and faction standings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				p, err := e.GetProfile(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOr(p, func(w io.Writer) {
					fmt.Fprintf(w, "%s  eddies %d  reputation %d (%s)\n", p.Actor.ID, p.Actor.Currency, p.Actor.Reputation, p.Actor.Tier)
					if len(p.Actor.Inventory) > 0 {
						ids := make([]string, 0, len(p.Actor.Inventory))
						for id := range p.Actor.Inventory {
							ids = append(ids, id)
						}
						sort.Strings(ids)
						var parts []string
						for _, id := range ids {
							parts = append(parts, fmt.Sprintf("%s x%d", id, p.Actor.Inventory[id]))
						}
						fmt.Fprintf(w, "inventory: %s\n", strings.Join(parts, ", "))
					}
					renderStandings(w, p.Standings)
					if len(p.Unlocks) > 0 {
						fmt.Fprintf(w, "unlocks: %s\n", strings.Join(p.Unlocks, ", "))
					}
				})
			})
		},
	}
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Aliases: []string{"contracts"}, Short: "Browse and run contracts"}
	c.AddCommand(
		contractListCmd(),
		contractShowCmd(),
		contractActionCmd("accept", "Accept a proposed contract", func(ctx context.Context, e engine.Engine, id, actor string) (domain.ContractView, error) {
			return e.AcceptContract(ctx, id, actor)
		}),
		contractAssignCmd(),
		contractActionCmd("reveal", "Reveal the lowest hidden skill threshold", func(ctx context.Context, e engine.Engine, id, actor string) (domain.ContractView, error) {
			v, _, err := e.RevealSkill(ctx, id, actor)
			return v, err
		}),
		contractActionCmd("analyze", "Reveal every hidden skill threshold", func(ctx context.Context, e engine.Engine, id, actor string) (domain.ContractView, error) {
			return e.AnalyzeContract(ctx, id, actor)
		}),
		contractGenerateCmd(),
	)
	return c
}

func contractListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List public offers and your contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				items, err := e.ListContracts(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOr(items, func(w io.Writer) {
					tw := newTable(w, table.Row{"ID", "Title", "Status", "Employer", "Target", "Threat", "Reward", "Skills", "TRP left"})
					for _, c := range items {
						tw.AppendRow(table.Row{
							c.ID, c.Title, c.Status, c.EmployerFaction, c.TargetFaction, c.ThreatLevel,
							fmt.Sprintf("%d€$ / %d rep", c.Reward.Eddies, c.Reward.Reputation),
							skillSummary(c), c.AcceptanceTRP,
						})
					}
					tw.Render()
				})
			})
		},
	}
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				c, err := e.GetContract(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printContract(c)
			})
		},
	}
}

func contractActionCmd(use, short string, fn func(context.Context, engine.Engine, string, string) (domain.ContractView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <contract-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				c, err := fn(ctx, e, args[0], actorID)
				if err != nil {
					return err
				}
				return printContract(c)
			})
		},
	}
}

func contractAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <contract-id> <skill=operative-id>...",
		Short: "Staff a contract, one operative per required skill",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments := map[domain.Skill]string{}
			for _, pair := range args[1:] {
				skill, opID, ok := strings.Cut(pair, "=")
				if !ok || opID == "" {
					return fmt.Errorf("assignment %q must look like skill=operative-id", pair)
				}
				assignments[domain.Skill(skill)] = opID
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				c, err := e.AssignOperatives(ctx, args[0], actorID, assignments)
				if err != nil {
					return err
				}
				return printContract(c)
			})
		},
	}
}

func contractGenerateCmd() *cobra.Command {
	var opts engine.ContractOptions
	var archetype string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a contract; omitted fields are rolled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Archetype = domain.Archetype(archetype)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = v.GetString("actor-id")
				c, err := e.GenerateContract(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOr(c, func(w io.Writer) {
					fmt.Fprintf(w, "%s  %s (threat %d, %s vs %s)\n", c.ID, c.Title, c.ThreatLevel, c.EmployerFaction, c.TargetFaction)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.EmployerFaction, "employer", "", "employer faction")
	cmd.Flags().StringVar(&opts.TargetFaction, "target", "", "target faction")
	cmd.Flags().IntVar(&opts.ThreatLevel, "threat", 0, "threat level")
	cmd.Flags().StringVar(&archetype, "archetype", "", "archetype")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "create already owned by this actor")
	return cmd
}

func printContract(c domain.ContractView) error {
	return printJSONOr(c, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", c.ID, c.Title)
		if c.Description != "" {
			fmt.Fprintf(w, "%s\n", c.Description)
		}
		fmt.Fprintf(w, "status %s  threat %d  %s vs %s  reward %d€$ / %d rep\n",
			c.Status, c.ThreatLevel, c.EmployerFaction, c.TargetFaction, c.Reward.Eddies, c.Reward.Reputation)
		fmt.Fprintf(w, "skills: %s\n", skillSummary(c))
		for _, sk := range domain.Skills {
			if op, ok := c.Assignments[sk]; ok {
				fmt.Fprintf(w, "  %s -> %s\n", sk, op)
			}
		}
	})
}

func skillSummary(c domain.ContractView) string {
	shown := c.RevealedSkills
	if c.RequiredSkills != nil {
		shown = c.RequiredSkills
	}
	var parts []string
	for _, sk := range shown.Keys() {
		parts = append(parts, fmt.Sprintf("%s %d", sk, shown[sk]))
	}
	if c.HiddenSkills > 0 {
		parts = append(parts, fmt.Sprintf("%d hidden", c.HiddenSkills))
	}
	return strings.Join(parts, ", ")
}

func marketCmd() *cobra.Command {
	m := &cobra.Command{Use: "market", Short: "Browse and buy from the market"}
	m.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the catalog and rotation schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					st, err := e.MarketState(ctx)
					if err != nil {
						return err
					}
					items, err := e.ListCatalog(ctx)
					if err != nil {
						return err
					}
					return printJSONOr(map[string]any{"state": st, "items": items}, func(w io.Writer) {
						fmt.Fprintf(w, "next rotation %s (enabled %t)\n", st.NextRotation.Format("2006-01-02 15:04 MST"), st.Enabled)
						tw := newTable(w, table.Row{"ID", "Name", "Category", "Rarity", "Price", "Stock", "Daily", "Min rep", "Effect"})
						for _, it := range items {
							if !it.Active {
								continue
							}
							tw.AppendRow(table.Row{it.ID, it.Name, it.Category, it.Rarity, it.Price,
								fmt.Sprintf("%d/%d", it.Stock, it.MaxStock), it.DailyLimit, it.MinReputation, it.Effect.String()})
						}
						tw.Render()
					})
				})
			},
		},
		&cobra.Command{
			Use:   "buy <item-id>",
			Short: "Buy one unit of an item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
					res, err := e.PurchaseItem(ctx, actorID, args[0])
					if err != nil {
						return err
					}
					return printJSONOr(res, func(w io.Writer) {
						fmt.Fprintf(w, "bought %s for %d€$, holding %d, %d€$ left\n", res.Item.Name, res.Item.Price, res.Quantity, res.Currency)
					})
				})
			},
		},
	)
	return m
}

func operativeCmd() *cobra.Command {
	o := &cobra.Command{Use: "operative", Aliases: []string{"operatives"}, Short: "Manage your operatives"}
	o.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your operatives",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
					ops, err := e.ListOperatives(ctx, actorID)
					if err != nil {
						return err
					}
					return printJSONOr(ops, func(w io.Writer) { renderOperatives(w, ops) })
				})
			},
		},
		&cobra.Command{
			Use:   "recruit",
			Short: "Recruit a new operative",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
					op, err := e.RecruitOperative(ctx, actorID)
					if err != nil {
						return err
					}
					return printJSONOr(op, func(w io.Writer) { renderOperatives(w, []domain.Operative{op}) })
				})
			},
		},
		operativeItemCmd("implant", "Install an implant", func(ctx context.Context, e engine.Engine, actor, op, item string) (domain.Operative, error) {
			return e.InstallImplant(ctx, actor, op, item)
		}),
		operativeItemCmd("use", "Arm a consumable", func(ctx context.Context, e engine.Engine, actor, op, item string) (domain.Operative, error) {
			return e.UseConsumable(ctx, actor, op, item)
		}),
	)
	return o
}

func operativeItemCmd(use, short string, fn func(context.Context, engine.Engine, string, string, string) (domain.Operative, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <operative-id> <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				op, err := fn(ctx, e, actorID, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOr(op, func(w io.Writer) { renderOperatives(w, []domain.Operative{op}) })
			})
		},
	}
}

func renderOperatives(w io.Writer, ops []domain.Operative) {
	tw := newTable(w, table.Row{"ID", "Name", "Hacking", "Stealth", "Combat", "Status", "Upgrades", "Armed"})
	for _, op := range ops {
		status := string(op.Status)
		if op.RecoveryUntil != nil {
			status += " until " + op.RecoveryUntil.Format("15:04")
		}
		var armed []string
		for _, eff := range op.Effects {
			armed = append(armed, eff.String())
		}
		tw.AppendRow(table.Row{op.ID, op.Name,
			op.Skills.Get(domain.SkillHacking), op.Skills.Get(domain.SkillStealth), op.Skills.Get(domain.SkillCombat),
			status, strings.Join(op.Upgrades, ","), strings.Join(armed, ",")})
	}
	tw.Render()
}

func leadCmd() *cobra.Command {
	l := &cobra.Command{Use: "lead", Short: "Contract leads"}
	l.AddCommand(&cobra.Command{
		Use:   "redeem <item-id>",
		Short: "Turn a lead from your inventory into a private contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				c, err := e.RedeemLead(ctx, actorID, args[0])
				if err != nil {
					return err
				}
				return printContract(c)
			})
		},
	})
	return l
}

func factionCmd() *cobra.Command {
	f := &cobra.Command{Use: "faction", Short: "Faction relations and threat"}
	f.AddCommand(
		&cobra.Command{
			Use:   "status <faction>",
			Short: "Standing with one faction",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
					st, err := e.FactionStatus(ctx, actorID, args[0])
					if err != nil {
						return err
					}
					return printJSONOr(st, func(w io.Writer) { renderStandings(w, []domain.FactionStanding{st}) })
				})
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "Relation and threat changes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
					items, err := e.FactionHistory(ctx, actorID)
					if err != nil {
						return err
					}
					return printJSONOr(items, func(w io.Writer) {
						tw := newTable(w, table.Row{"At", "Faction", "Kind", "Delta", "Note"})
						for _, ev := range items {
							tw.AppendRow(table.Row{ev.At.Format("2006-01-02 15:04"), ev.Faction, ev.Kind, ev.Delta, ev.Note})
						}
						tw.Render()
					})
				})
			},
		},
		factionAdjustCmd(),
		&cobra.Command{
			Use:   "hostile <actor-id> <faction> [note]",
			Short: "Record a hostile action, raising threat by one",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				note := ""
				if len(args) == 3 {
					note = args[2]
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					st, err := e.RecordHostileAction(ctx, args[0], args[1], note)
					if err != nil {
						return err
					}
					return printJSONOr(st, func(w io.Writer) { renderStandings(w, []domain.FactionStanding{st}) })
				})
			},
		},
	)
	return f
}

func factionAdjustCmd() *cobra.Command {
	var delta int
	var note string
	cmd := &cobra.Command{
		Use:   "adjust <actor-id> <faction>",
		Short: "Adjust an actor's relation with a faction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.AdjustRelation(ctx, args[0], args[1], delta, note)
				if err != nil {
					return err
				}
				return printJSONOr(st, func(w io.Writer) { renderStandings(w, []domain.FactionStanding{st}) })
			})
		},
	}
	cmd.Flags().IntVar(&delta, "delta", 0, "relation change")
	cmd.Flags().StringVar(&note, "note", "", "history note")
	return cmd
}

func renderStandings(w io.Writer, items []domain.FactionStanding) {
	if len(items) == 0 {
		return
	}
	tw := newTable(w, table.Row{"Faction", "Relation", "Status", "Threat"})
	for _, st := range items {
		tw.AppendRow(table.Row{st.Faction, st.Relation, st.Status, st.Threat})
	}
	tw.Render()
}

func notificationsCmd() *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications for the actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actorID string) error {
				items, err := e.ListNotifications(ctx, actorID, after, limit)
				if err != nil {
					return err
				}
				return printJSONOr(items, func(w io.Writer) {
					tw := newTable(w, table.Row{"ID", "At", "Kind", "Message"})
					for _, n := range items {
						tw.AppendRow(table.Row{n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Kind, n.Message})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only notifications with a greater id")
	cmd.Flags().IntVar(&limit, "n", 50, "max notifications")
	return cmd
}
