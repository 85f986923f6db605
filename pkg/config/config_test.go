package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadString(t *testing.T) {
	data := `
[printer]
kinematics: corexy
max_velocity: 300

[auto_offset_z]
center_xy_position: 150,150
endstop_xy_position: 232.5,355
speed: 100
z_hop: 10.5  # clearance
offsetadjust: -0.21
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !cfg.HasSection("printer") {
		t.Error("expected [printer] section to exist")
	}
	if !cfg.HasSection("auto_offset_z") {
		t.Error("expected [auto_offset_z] section to exist")
	}
	if cfg.HasSection("nonexistent") {
		t.Error("expected [nonexistent] section to not exist")
	}

	sec, err := cfg.GetSection("auto_offset_z")
	if err != nil {
		t.Fatalf("GetSection(auto_offset_z) failed: %v", err)
	}
	if sec.GetName() != "auto_offset_z" {
		t.Errorf("expected name 'auto_offset_z', got '%s'", sec.GetName())
	}

	speed, err := sec.GetFloat("speed")
	if err != nil {
		t.Fatalf("GetFloat(speed) failed: %v", err)
	}
	if speed != 100 {
		t.Errorf("expected 100, got %f", speed)
	}

	// Inline comment is stripped
	zHop, err := sec.GetFloat("z_hop")
	if err != nil {
		t.Fatalf("GetFloat(z_hop) failed: %v", err)
	}
	if zHop != 10.5 {
		t.Errorf("expected 10.5, got %f", zHop)
	}

	adjust, err := sec.GetFloat("offsetadjust")
	if err != nil {
		t.Fatalf("GetFloat(offsetadjust) failed: %v", err)
	}
	if adjust != -0.21 {
		t.Errorf("expected -0.21, got %f", adjust)
	}
}

func TestGetXYPosition(t *testing.T) {
	cfg, err := LoadString("[auto_offset_z]\ncenter_xy_position: 150, 150.5\nbad: 1,2,3\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.GetSection("auto_offset_z")

	x, y, err := sec.GetXYPosition("center_xy_position")
	if err != nil {
		t.Fatalf("GetXYPosition failed: %v", err)
	}
	if x != 150 || y != 150.5 {
		t.Errorf("expected (150, 150.5), got (%f, %f)", x, y)
	}

	if _, _, err := sec.GetXYPosition("bad"); err == nil {
		t.Error("expected error for 3-element position")
	}
	if _, _, err := sec.GetXYPosition("missing"); err == nil {
		t.Error("expected error for missing option")
	}
}

func TestGetFloatWithBounds(t *testing.T) {
	cfg, err := LoadString("[auto_offset_z]\nspeed: 0\nz_hop: 10\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.GetSection("auto_offset_z")

	if _, err := sec.GetFloatWithBounds("speed", Above(0)); err == nil {
		t.Error("expected error for speed=0 with above=0")
	}
	v, err := sec.GetFloatWithBounds("z_hop", Above(0))
	if err != nil {
		t.Fatalf("GetFloatWithBounds(z_hop) failed: %v", err)
	}
	if v != 10 {
		t.Errorf("expected 10, got %f", v)
	}
	// Fallback is not bounds-checked against missing options
	v, err = sec.GetFloatWithBounds("z_hop_speed", Above(0), 15.0)
	if err != nil {
		t.Fatalf("GetFloatWithBounds with fallback failed: %v", err)
	}
	if v != 15.0 {
		t.Errorf("expected fallback 15.0, got %f", v)
	}
}

func TestSaveConfigBlock(t *testing.T) {
	data := `
[stepper_z]
position_max: 350

#*# [probe]
#*# z_offset = 1.234
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, err := cfg.GetSection("probe")
	if err != nil {
		t.Fatalf("expected SAVE_CONFIG [probe] section: %v", err)
	}
	v, err := sec.GetFloat("z_offset")
	if err != nil {
		t.Fatalf("GetFloat(z_offset) failed: %v", err)
	}
	if v != 1.234 {
		t.Errorf("expected 1.234, got %f", v)
	}
}

func TestSaveConfigMergesSection(t *testing.T) {
	data := `
[probe]
pin: PA1
z_offset: 0.5

#*# [probe]
#*# z_offset = 1.0
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.GetSection("probe")
	v, _ := sec.GetFloat("z_offset")
	if v != 1.0 {
		t.Errorf("SAVE_CONFIG value should override, got %f", v)
	}
	pin, _ := sec.Get("pin")
	if pin != "PA1" {
		t.Errorf("original option should survive merge, got %q", pin)
	}
}

func TestMultilineValue(t *testing.T) {
	data := "[z_tilt]\nz_positions:\n  -50, 18\n  125, 298\n  300, 18\n"
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.GetSection("z_tilt")
	v, err := sec.Get("z_positions")
	if err != nil {
		t.Fatalf("Get(z_positions) failed: %v", err)
	}
	if v != "\n-50, 18\n125, 298\n300, 18" {
		t.Errorf("unexpected multiline value: %q", v)
	}
}

func TestLoadWithInclude(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "probe.cfg")
	if err := os.WriteFile(inc, []byte("[probe]\nx_offset: -24\ny_offset: -13\n"), 0644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "printer.cfg")
	if err := os.WriteFile(main, []byte("[include probe.cfg]\n[printer]\nkinematics: corexy\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.HasSection("probe") {
		t.Fatal("expected included [probe] section")
	}
	sec, _ := cfg.GetSection("probe")
	x, _ := sec.GetFloat("x_offset")
	if x != -24 {
		t.Errorf("expected -24, got %f", x)
	}
}

func TestLoadMissingInclude(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "printer.cfg")
	if err := os.WriteFile(main, []byte("[include missing.cfg]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(main); err == nil {
		t.Error("expected error for missing include file")
	}
}

func TestUnusedOptions(t *testing.T) {
	cfg, err := LoadString("[auto_offset_z]\nspeed: 50\ntypo_option: 1\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.GetSection("auto_offset_z")
	if _, err := sec.GetFloat("speed"); err != nil {
		t.Fatal(err)
	}
	unused := sec.GetUnusedOptions()
	if len(unused) != 1 || unused[0] != "typo_option" {
		t.Errorf("expected [typo_option] unused, got %v", unused)
	}
}
