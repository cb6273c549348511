package delivery

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

const DefaultMaxArchiveBytes = 50 << 20

var ErrArchiveTooLarge = errors.New("delivery archive exceeds size limit")

// FileDelivery packs the payload files of sold units into a zip archive per purchase.
// Payloads live under <base>/<category>/<item>/<payload>.*
type FileDelivery struct {
	logger    *slog.Logger
	inventory ports.InventoryStore

	baseDir  string
	outDir   string
	maxBytes int64
	clock    ports.Clock
}

func NewFileDelivery(
	logger *slog.Logger,
	inventory ports.InventoryStore,
	baseDir, outDir string,
	maxBytes int64,
	clock ports.Clock,
) *FileDelivery {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	if clock == nil {
		clock = time.Now
	}
	return &FileDelivery{
		logger:    logger,
		inventory: inventory,
		baseDir:   baseDir,
		outDir:    outDir,
		maxBytes:  maxBytes,
		clock:     clock,
	}
}

// ArchiveName returns YYYYMMDD_<buyer>_<last 4 chars of purchase id>.zip
func (d *FileDelivery) ArchiveName(req ports.DeliveryRequest) string {
	id := strings.ReplaceAll(req.PurchaseID.String(), "-", "")
	return fmt.Sprintf("%s_%d_%s.zip", d.clock().UTC().Format("20060102"), req.BuyerID, id[len(id)-4:])
}

// ArchivePath is where Deliver writes the archive of req.
func (d *FileDelivery) ArchivePath(req ports.DeliveryRequest) string {
	return filepath.Join(d.outDir, d.ArchiveName(req))
}

// Deliver writes the archive and returns the number of files packed into it.
func (d *FileDelivery) Deliver(ctx context.Context, req ports.DeliveryRequest) (int, error) {
	units, err := d.inventory.GetUnits(ctx, req.UnitIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load units for purchase %s: %w", req.PurchaseID, err)
	}

	if err = os.MkdirAll(d.outDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create delivery dir: %w", err)
	}

	path := d.ArchivePath(req)
	packed, err := d.writeArchive(path, req.Item, units)
	if err != nil || packed == 0 {
		_ = os.Remove(path)
	}
	if err != nil {
		return 0, err
	}
	if packed == 0 {
		d.logger.WarnContext(ctx, "No payload files found", "purchase_id", req.PurchaseID, "item_id", req.Item.ID)
		return 0, nil
	}

	d.logger.InfoContext(ctx, "Purchase delivered",
		"purchase_id", req.PurchaseID,
		"buyer_id", req.BuyerID,
		"files", packed,
		"archive", path,
	)
	return packed, nil
}

func (d *FileDelivery) writeArchive(path string, item entities.CatalogItem, units []entities.InventoryUnit) (int, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	dir := filepath.Join(d.baseDir, item.Category, item.ID)

	var (
		packed int
		total  int64
	)
	for _, unit := range units {
		files, err := filepath.Glob(filepath.Join(dir, unit.PayloadName+".*"))
		if err != nil {
			return 0, fmt.Errorf("failed to look up payload %s: %w", unit.PayloadName, err)
		}
		for _, file := range files {
			n, err := addFile(zw, file, d.maxBytes-total)
			if err != nil {
				_ = zw.Close()
				return 0, err
			}
			total += n
			packed++
		}
	}

	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}
	return packed, nil
}

func addFile(zw *zip.Writer, path string, budget int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat payload: %w", err)
	}
	if info.Size() > budget {
		return 0, ErrArchiveTooLarge
	}

	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open payload: %w", err)
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return 0, fmt.Errorf("failed to add %s to archive: %w", filepath.Base(path), err)
	}
	n, err := io.Copy(w, io.LimitReader(src, budget))
	if err != nil {
		return 0, fmt.Errorf("failed to copy payload: %w", err)
	}
	return n, nil
}
