package app

import (
	"context"
	"reflect"
	"strings"

	"joinmotd/internal/config"
	logx "joinmotd/pkg/logx"
)

// startConfigReload applies hot config reloads. Sections read only at
// startup are reported and left alone.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", rr))
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case "ops_http":
			if oc, err := mapOpsConfig(newCfg); err != nil {
				a.log.Warn("invalid ops_http config; keeping previous", logx.Err(err))
			} else {
				a.ops.Apply(ctx, oc)
			}
		case "task_engine":
			if ec, err := mapTaskEngineConfig(newCfg); err != nil {
				a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
			} else {
				a.engine.Apply(ctx, ec)
			}
		case "commands":
			a.commands.Apply(mapCommandsConfig(newCfg))
		case "motd":
			a.applyMOTD(oldCfg.MOTD, newCfg.MOTD)
		}
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// applyMOTD swaps the static version table live. The other motd settings are
// baked into the renderer and greeter at startup.
func (a *App) applyMOTD(oldM, newM config.MOTDConfig) {
	if !reflect.DeepEqual(oldM.Versions, newM.Versions) {
		a.versions.SetStatic(newM.Versions)
		a.log.Info("version table updated", logx.Int("entries", len(newM.Versions)))
	}
	oldM.Versions, newM.Versions = nil, nil
	if !reflect.DeepEqual(oldM, newM) {
		a.log.Warn("motd settings other than versions take effect after restart")
	}
}
