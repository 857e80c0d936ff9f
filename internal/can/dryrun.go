package can

import "log"

// DryRun wraps a Transport and suppresses writes while passing everything
// else through. All decision logic upstream still runs, so a full mode can
// be exercised against a live bus without touching it.
type DryRun struct {
	Transport
}

func NewDryRun(t Transport) *DryRun { return &DryRun{Transport: t} }

func (d *DryRun) Name() string { return d.Transport.Name() + " (dry run)" }

func (d *DryRun) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	log.Printf("[dry-run] would send %s", f)
	return nil
}
