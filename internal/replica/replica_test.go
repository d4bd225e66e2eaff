package replica

import (
	"testing"
	"time"

	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/testutil/testlog"
)

const eps = 1e-4

func TestApplyResetsBlendToRestart(t *testing.T) {
	testlog.Start(t)
	in := New(DefaultConfig())
	var tgt Target
	tgt.Blend = 0.8
	in.Apply(&tgt, geom.Vec3{X: 1, Y: 2, Z: 3}, geom.Identity())
	if tgt.Blend != DefaultBlendRestart {
		t.Fatalf("blend=%v want=%v", tgt.Blend, DefaultBlendRestart)
	}
	if !tgt.Active || tgt.Position != (geom.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("target not stored: %+v", tgt)
	}
}

func TestAdvanceWithoutTargetKeepsPose(t *testing.T) {
	testlog.Start(t)
	in := New(DefaultConfig())
	var tgt Target
	pos := geom.Vec3{X: 4}
	gotPos, gotRot := in.Advance(&tgt, time.Second, pos, geom.Identity())
	if gotPos != pos || gotRot != geom.Identity() {
		t.Fatalf("pose moved without a target")
	}
}

func TestAdvanceStepsBlendByDeltaOverWindow(t *testing.T) {
	testlog.Start(t)
	in := New(DefaultConfig())
	var tgt Target
	in.Apply(&tgt, geom.Vec3{X: 10}, geom.Identity())
	in.Advance(&tgt, 10*time.Millisecond, geom.Vec3{}, geom.Identity())
	if d := tgt.Blend - 0.3; d > eps || d < -eps {
		t.Fatalf("blend=%v want=0.3", tgt.Blend)
	}
	in.Advance(&tgt, time.Second, geom.Vec3{}, geom.Identity())
	if tgt.Blend != 1 {
		t.Fatalf("blend should clamp at 1, got %v", tgt.Blend)
	}
}

func TestConvergesToFixedTargetAndStays(t *testing.T) {
	testlog.Start(t)
	in := New(DefaultConfig())
	var tgt Target
	target := geom.Vec3{X: 1, Y: 2, Z: 3}
	targetRot := geom.Euler(90, 0, 25)
	in.Apply(&tgt, target, targetRot)

	pos, rot := geom.Vec3{}, geom.Identity()
	for i := 0; i < 30; i++ {
		pos, rot = in.Advance(&tgt, 16*time.Millisecond, pos, rot)
	}
	if pos.Sub(target).Len() > eps {
		t.Fatalf("position did not converge: %+v", pos)
	}
	if rot.Angle(targetRot) > eps {
		t.Fatalf("rotation did not converge: %+v", rot)
	}
	for i := 0; i < 30; i++ {
		pos, rot = in.Advance(&tgt, 16*time.Millisecond, pos, rot)
	}
	if pos.Sub(target).Len() > eps || rot.Angle(targetRot) > eps {
		t.Fatalf("pose drifted after convergence")
	}
}

func TestNewRepairsZeroWindow(t *testing.T) {
	in := New(Config{BlendRestart: 2})
	if in.cfg.SmoothingWindow != DefaultSmoothingWindow {
		t.Fatalf("window=%v", in.cfg.SmoothingWindow)
	}
	if in.cfg.BlendRestart != 1 {
		t.Fatalf("restart=%v", in.cfg.BlendRestart)
	}
}
