package shell

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cjoudrey/gluahttp"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

type scriptEnv struct {
	sc  *ShellController
	ctx context.Context
}

func getShell(L *lua.LState) *scriptEnv {
	shell := L.GetGlobal("bjsim_shell")
	ud, ok := shell.(*lua.LUserData)
	if !ok {
		panic("luserdata not right type")
	}
	env, ok := ud.Value.(*scriptEnv)
	if !ok {
		panic("shellcontroller not right type")
	}
	return env
}

// command returns a Lua function that runs the shell command name with the
// argument string it is called with, and returns the command's output.
func command(name string) lua.LGFunction {
	return func(L *lua.LState) int {
		lv := L.OptString(1, "")
		env := getShell(L)
		cmd, err := extractFields(name + " " + lv)
		if err != nil {
			log.Err(err).Msg("error-parsing-" + name)
			L.Push(lua.LString("ERROR: " + err.Error()))
			return 1
		}
		r, err := env.sc.dispatch(env.ctx, cmd)
		if err != nil {
			log.Err(err).Msg("error-executing-" + name)
			L.Push(lua.LString("ERROR: " + err.Error()))
			return 1
		}
		L.Push(lua.LString(r.message))
		// return number of results pushed to stack.
		return 1
	}
}

func Stats(L *lua.LState) int {
	env := getShell(L)
	snap := env.sc.Snapshot()
	bts, err := json.Marshal(snap)
	if err != nil {
		L.RaiseError("marshal snapshot: %v", err)
		return 0
	}
	v, err := luajson.Decode(L, bts)
	if err != nil {
		L.RaiseError("decode snapshot: %v", err)
		return 0
	}
	tbl, ok := v.(*lua.LTable)
	if ok {
		tbl.RawSetString("edge", lua.LNumber(snap.Edge()))
		tbl.RawSetString("gain_per_round", lua.LNumber(snap.GainPerRound()))
	}
	L.Push(v)
	return 1
}

func (sc *ShellController) script(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if cmd.args == nil {
		return nil, errors.New("need arguments for script")
	}

	filepath := cmd.args[0]

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	luajson.Preload(L)
	L.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{}).Loader)

	// simulations started from a script always run to completion.
	batch := sc.batch
	sc.batch = true
	defer func() { sc.batch = batch }()

	lsc := L.NewUserData()
	lsc.Value = &scriptEnv{sc: sc, ctx: ctx}

	L.SetGlobal("bjsim_shell", lsc)
	L.SetGlobal("bjsim_ev", L.NewFunction(command("ev")))
	L.SetGlobal("bjsim_insurance", L.NewFunction(command("insurance")))
	L.SetGlobal("bjsim_dealer", L.NewFunction(command("dealer")))
	L.SetGlobal("bjsim_sim", L.NewFunction(command("sim")))
	L.SetGlobal("bjsim_stats", L.NewFunction(Stats))

	if err := L.DoFile(filepath); err != nil {
		log.Err(err).Msg("there was a error")
		return nil, err
	}
	return nil, nil
}
