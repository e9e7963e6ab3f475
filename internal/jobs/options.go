package jobs

import (
	"log/slog"

	"synthbridge/internal/config"
	"synthbridge/internal/freesurfer"
)

// SegDefaults returns the configured mri_synthseg options.
func SegDefaults(cfg *config.Config) freesurfer.SegOptions {
	s := cfg.SynthSeg
	return freesurfer.SegOptions{
		Parc:    s.Parc,
		Robust:  s.Robust,
		Fast:    s.Fast,
		CPU:     s.CPU,
		Threads: s.Threads,
		V1:      s.V1,
		CT:      s.CT,
	}
}

// StripDefaults returns the configured mri_synthstrip options.
func StripDefaults(cfg *config.Config) freesurfer.StripOptions {
	s := cfg.SynthStrip
	return freesurfer.StripOptions{
		UseGPU:     s.GPU,
		Border:     s.Border,
		ExcludeCSF: s.NoCSF,
	}
}

// AdapterOptions translates the [freesurfer] and [paths] sections into
// adapter options.
func AdapterOptions(cfg *config.Config, logger *slog.Logger) ([]freesurfer.Option, error) {
	style, err := freesurfer.ParseFlagStyle(cfg.FreeSurfer.SynthStripFlagStyle)
	if err != nil {
		return nil, err
	}
	return []freesurfer.Option{
		freesurfer.WithLogger(logger),
		freesurfer.WithWorkRoot(cfg.Paths.WorkDir),
		freesurfer.WithHomeVariable(cfg.FreeSurfer.HomeEnv),
		freesurfer.WithChildEnv(cfg.FreeSurfer.BlankEnv, cfg.FreeSurfer.UnsetEnv),
		freesurfer.WithStripFlagStyle(style),
	}, nil
}
