package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/catalog"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/slot"
)

// Clinic identity shown in the main menu. The advertised hours end half an hour
// after the last bookable slot.
const (
	ClinicName      = "Klinik Gigi Elsaa"
	AdvertisedHours = "12.00 – 19.30"
)

// Fixed replies.
const (
	ReplyMainMenu = "🦷 *" + ClinicName + "*\n" +
		"🕒 Jam praktek: " + AdvertisedHours + "\n\n" +
		"Pilih menu:\n" +
		"1. Booking Appointment\n" +
		"2. Jam Praktek\n" +
		"3. Jenis Layanan"
	ReplyHours             = "🕒 Jam praktek: " + AdvertisedHours + "\n\n0. Kembali"
	ReplyCancelled         = "❌ *Booking dibatalkan*\n\nKetik *menu* untuk mulai lagi."
	ReplyBack              = "🔙 Kembali ke langkah sebelumnya"
	ReplyDatePrompt        = "Masukkan tanggal appointment\nFormat: YYYY-MM-DD\n\n9. Kembali\n0. Menu\n#. Batal"
	ReplyInvalidDate       = "Format salah. Contoh: 2026-02-15"
	ReplyFullyBooked       = "❌ Semua jam di tanggal ini sudah penuh."
	ReplyInvalidTime       = "Pilih jam yang tersedia ya 🙂"
	ReplyBooked            = "✅ *Appointment berhasil dicatat*\nAdmin akan menghubungi Anda."
	ReplyPersistenceFailed = "❌ Terjadi kesalahan saat menyimpan data. Silakan coba lagi nanti."
	ReplyTemporaryFailure  = "⚠️ Maaf, sistem sedang sibuk. Silakan kirim ulang pesan Anda sebentar lagi."
)

// navigationFooter follows every prompt past service selection.
const navigationFooter = "\n\n9. Kembali\n0. Menu\n#. Batal"

// ServiceMenu lists the catalog as numbered choices.
func ServiceMenu(c *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("Pilih jenis layanan:\n")
	for i, s := range c.All() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s. %s", s.Code, s.Label)
	}
	b.WriteString("\n\n0. Kembali")
	return b.String()
}

// ServiceInfo lists the service labels without codes.
func ServiceInfo(c *catalog.Catalog) string {
	return "Jenis layanan:\n" + strings.Join(c.Labels(), "\n") + "\n\n0. Kembali"
}

// InvalidService reprompts with the valid code range.
func InvalidService(c *catalog.Catalog) string {
	all := c.All()
	if len(all) == 0 {
		return "Layanan belum tersedia 🙂"
	}
	return fmt.Sprintf("Pilih angka %s–%s ya 🙂", all[0].Code, all[len(all)-1].Code)
}

// SlotMenu lists available times with 1-based indices.
func SlotMenu(times []slot.Time) string {
	var b strings.Builder
	b.WriteString("Pilih jam tersedia:\n")
	for i, t := range times {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, t)
	}
	b.WriteString(navigationFooter)
	return b.String()
}

// ConfirmationSummary recaps the pending booking.
func ConfirmationSummary(service string, date slot.Date, at slot.Time) string {
	return fmt.Sprintf("🦷 *Konfirmasi Appointment*\n\nLayanan: %s\nTanggal: %s\nJam: %s\n\n1. Konfirmasi\n9. Kembali\n#. Batal",
		service, date, at)
}

// AdminNotification announces a new booking to the clinic admin.
func AdminNotification(b models.Booking) string {
	return fmt.Sprintf("📢 *BOOKING BARU*\n\nNama: %s\nNo HP: %s\nLayanan: %s\nTanggal: %s\nJam: %s",
		b.Name, b.Phone, b.Service, b.Date, b.Time)
}
