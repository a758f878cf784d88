package goja

import (
	"context"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	nativewasm "github.com/reglet-dev/reglet-script/infrastructure/wazero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_RelativeChainAndJSON(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js":     `const u = require("./lib/util.js"); module.exports = { v: u.value + 1, dir: u.dir };`,
		"/project/lib/util.js": `const d = require("../data.json"); exports.value = d.n; exports.dir = __dirname;`,
		"/project/data.json":   `{"n": 41}`,
	})

	id, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, entities.ModuleIdentity("/project/main.js"), id)

	obj := exports.ToObject(env.vm)
	assert.Equal(t, int64(42), obj.Get("v").ToInteger())
	assert.Equal(t, "/project/lib", obj.Get("dir").String())

	rec, ok := env.cache.Record("/project/data.json")
	require.True(t, ok)
	assert.Equal(t, entities.ModuleStateReady, rec.State)
	assert.Equal(t, entities.ModuleKindJSON, rec.Kind)
}

func TestLoader_SameIdentityLoadedOnce(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js":   `const a = require("./a.js"); const b = require("./sub/../b.js"); module.exports = a.d === b.d;`,
		"/project/a.js":      `exports.d = require("./data.json");`,
		"/project/b.js":      `exports.d = require("/project/data.json");`,
		"/project/data.json": `{"n": 1}`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.True(t, exports.ToBoolean(), "both importers see the same module instance")
	assert.Equal(t, int64(1), env.backend.Reads("/project/data.json"))
	assert.Equal(t, int64(1), env.backend.Reads("/project/b.js"))
}

func TestLoader_CycleSeesPartialExports(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/a.js": `exports.early = 1; const b = require("./b.js"); exports.fromB = b.sawEarly; exports.late = 2;`,
		"/project/b.js": `const a = require("./a.js"); exports.sawEarly = a.early; exports.sawLate = a.late;`,
	})

	_, exports, err := env.importModule(t, "./a.js")
	require.NoError(t, err)

	obj := exports.ToObject(env.vm)
	assert.Equal(t, int64(1), obj.Get("fromB").ToInteger())
	assert.Equal(t, int64(2), obj.Get("late").ToInteger())

	bExports, ok := env.loader.Exports("/project/b.js")
	require.True(t, ok)
	assert.True(t, isUndefined(bExports.ToObject(env.vm).Get("sawLate")), "b ran before a finished")
}

func TestLoader_EvaluationErrorCachedPerInstance(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `
			const msgs = [];
			for (let i = 0; i < 2; i++) {
				try { require("./bad.js"); } catch (e) { msgs.push(e.message); }
			}
			module.exports = msgs.join(",");`,
		"/project/bad.js": `globalThis.evaluations = (globalThis.evaluations || 0) + 1; throw new Error("boom");`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, "boom,boom", exports.String())
	assert.Equal(t, int64(1), env.vm.Get("evaluations").ToInteger())
	assert.Equal(t, int64(1), env.backend.Reads("/project/bad.js"))

	rec, ok := env.cache.Record("/project/bad.js")
	require.True(t, ok)
	assert.Equal(t, entities.ModuleStateReady, rec.State, "evaluation errors do not fail the cache record")
}

func TestLoader_BuiltinsSkipBroker(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `
			const fs = require("ext:fs");
			const io = require("ext:io");
			const path = require("ext:path");
			module.exports = [typeof fs.readFileSync, typeof io.print, path.join("a", "b")].join(",");`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, "function,function,a/b", exports.String())

	reqs := env.broker.Requests()
	require.Len(t, reqs, 1, "only the entry fetch is authorized")
	assert.Equal(t, "require", reqs[0].APIName())
	assert.Equal(t, "/project/main.js", reqs[0].Path())
}

func TestLoader_InternalBuiltinNotResolvable(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `require("ext:core");`,
	})

	_, _, err := env.importModule(t, "./main.js")
	require.Error(t, err)

	var res *domerrors.ResolutionError
	require.ErrorAs(t, Translate(err), &res)
	assert.Equal(t, domerrors.ResolutionUnsupported, res.Kind)
}

func TestLoader_MissingModuleFailedOnce(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `
			const codes = [];
			for (let i = 0; i < 3; i++) {
				try { require("./nope.js"); } catch (e) { codes.push(e.name + ":" + e.code); }
			}
			module.exports = codes.join(",");`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, "FetchError:not_found,FetchError:not_found,FetchError:not_found", exports.String())
	assert.Equal(t, int64(1), env.backend.Reads("/project/nope.js"))

	rec, ok := env.cache.Record("/project/nope.js")
	require.True(t, ok)
	assert.Equal(t, entities.ModuleStateFailed, rec.State)
}

func TestLoader_DeniedRequire(t *testing.T) {
	env := newEngine(t, readOnlyProject(), map[string]string{
		"/project/main.js": `require("/secret/key.js");`,
		"/secret/key.js":   `module.exports = "secret";`,
	})

	_, _, err := env.importModule(t, "./main.js")
	require.Error(t, err)

	translated := Translate(err)
	var fe *domerrors.FetchError
	require.ErrorAs(t, translated, &fe)
	assert.Equal(t, domerrors.FetchDenied, fe.Kind)

	var pd *domerrors.PermissionDeniedError
	require.ErrorAs(t, translated, &pd)
	assert.Equal(t, entities.CapabilityRead, pd.Capability)
	assert.Zero(t, env.backend.Reads("/secret/key.js"))
}

func TestLoader_DeniedRequireIsCatchable(t *testing.T) {
	env := newEngine(t, readOnlyProject(), map[string]string{
		"/project/main.js": `try { require("/secret/key.js"); } catch (e) { module.exports = e.name + ":" + e.capability; }`,
		"/secret/key.js":   `module.exports = "secret";`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, "PermissionDenied:read", exports.String())
}

func TestLoader_RequireNeedsString(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `try { require(42); } catch (e) { module.exports = e instanceof TypeError; }`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.True(t, exports.ToBoolean())
}

func TestLoader_SyntaxErrorIsCached(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/broken.js": `module.exports = {;`,
	})

	_, _, err := env.importModule(t, "./broken.js")
	require.Error(t, err)

	_, _, again := env.importModule(t, "./broken.js")
	assert.Same(t, err, again)
}

func TestLoader_ResolutionErrorNotFetched(t *testing.T) {
	env := newEngine(t, nil, nil)

	_, _, err := env.importModule(t, "lodash")
	var res *domerrors.ResolutionError
	require.ErrorAs(t, err, &res)
	assert.Zero(t, env.broker.Count())
	assert.Zero(t, env.cache.Len())
}

func TestLoader_NativeDisabled(t *testing.T) {
	env := newEngine(t, nil, map[string]string{"/project/math.wasm": string(addWasm)})

	_, _, err := env.importModule(t, "./math.wasm")
	require.ErrorIs(t, err, ErrNativeDisabled)
}

func TestLoader_NativeModule(t *testing.T) {
	ctx := context.Background()
	nl, err := nativewasm.NewNativeLoader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nl.Close(ctx) })

	native := func(ctx context.Context, id entities.ModuleIdentity, payload []byte) (NativeModule, error) {
		m, err := nl.Instantiate(ctx, id, payload)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	env := newEngine(t, nil, map[string]string{
		"/project/main.js":   `const m = require("./math.wasm"); module.exports = m.add(40, 2);`,
		"/project/math.wasm": string(addWasm),
	}, WithNative(native))

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, int64(42), exports.ToInteger())

	rec, ok := env.cache.Record("/project/math.wasm")
	require.True(t, ok)
	assert.Equal(t, entities.ModuleKindNative, rec.Kind)
}

func TestLoader_ForgetReevaluates(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/count.js": `globalThis.runs = (globalThis.runs || 0) + 1; module.exports = globalThis.runs;`,
	})

	_, first, err := env.importModule(t, "./count.js")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ToInteger())

	_, again, err := env.importModule(t, "./count.js")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.ToInteger())

	assert.True(t, env.loader.Forget(context.Background(), "/project/count.js"))
	assert.False(t, env.loader.Forget(context.Background(), "/project/count.js"))

	_, second, err := env.importModule(t, "./count.js")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ToInteger())
	assert.Equal(t, int64(1), env.backend.Reads("/project/count.js"), "the cached payload is reused")
}

func TestPathBuiltin(t *testing.T) {
	env := newEngine(t, nil, map[string]string{
		"/project/main.js": `
			const p = require("ext:path");
			module.exports = [
				p.join("/a", "b", "../c"),
				p.dirname("/a/b/c.js"),
				p.basename("/a/b/c.js", ".js"),
				p.extname("c.json"),
				p.resolve("/a", "b", "/x", "y"),
				p.normalize("a//b/./c"),
				p.isAbsolute("/a"),
				p.sep,
			].join("|");`,
	})

	_, exports, err := env.importModule(t, "./main.js")
	require.NoError(t, err)
	assert.Equal(t, "/a/c|/a/b|c|.json|/x/y|a/b/c|true|/", exports.String())
}
