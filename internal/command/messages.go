package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/iago/report-relay/internal/domain"
)

const (
	GreetingText = "👋 สวัสดีครับ! บอทรายงานความปลอดภัย\n\nเมื่อท่านสแกน QR Code เพื่อรายงาน\nระบบจะส่งแจ้งเตือนความคืบหน้าผ่านทางนี้ครับ"

	staffOnlyText      = "สำหรับเจ้าหน้าที่เท่านั้นครับ"
	helpText           = "💡 คำสั่ง:\n• \"รายงาน\" - ดูสถานะ\n• \"เรียบร้อย\" - ปิดงานล่าสุด\n• \"เรียบร้อย #1234\" - ปิดงานตามรหัส"
	reportNotFoundText = "❌ ไม่พบรายงานที่ต้องการยืนยัน หรือปิดงานไปแล้ว"
	noPendingText      = "❌ ไม่พบรายงานที่ค้างอยู่"
)

func closedConfirmationText(report domain.Report) string {
	return fmt.Sprintf(
		"✅ แจ้งย้อนกลับให้คุณ%s เรียบร้อยแล้ว!\n📍 จุดที่ %s\n📝 รหัสรายงาน: #%d",
		report.DisplayName,
		report.PointID,
		report.ReportID,
	)
}

// CompletionNoticeText is pushed to the reporter once their report is closed.
func CompletionNoticeText(report domain.Report) string {
	return fmt.Sprintf("✅ การรายงานจุดที่ %s จัดการเรียบร้อยแล้ว!\n\nขอบคุณที่แจ้งปัญหาให้ทราบ 🙏", report.PointID)
}

func deliveryFailureAlertText(report domain.Report) string {
	return fmt.Sprintf(
		"⚠️ แจ้งเตือน: ส่งข้อความหาลูกค้าไม่ได้ (งาน #%d)\nสาเหตุ: ลูกค้าอาจบล็อกบอท หรือยังไม่เพิ่มเพื่อน",
		report.ReportID,
	)
}

// NewReportAlertText is pushed to the admin when a report arrives.
func NewReportAlertText(report domain.Report) string {
	return fmt.Sprintf(
		"🚨 รายงานใหม่!\n👤 คุณ%s\n📍 จุดที่ %s\n📝 รหัส: #%d\n\nพิมพ์ \"เรียบร้อย #%d\" เพื่อยืนยัน",
		report.DisplayName,
		report.PointID,
		report.ReportID,
		report.ReportID,
	)
}

// ReporterAckText is the best-effort receipt sent to the reporter on submission.
func ReporterAckText(report domain.Report) string {
	return fmt.Sprintf("✅ รับเรื่องจุด %s แล้วครับ\nเจ้าหน้าที่จะรีบดำเนินการตรวจสอบ 🕒", report.PointID)
}

func statusText(counts domain.ReportCounts, recent []domain.Report, location *time.Location) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "📊 สถานะรายงาน\n⏳ รอแก้ไข: %d\n✅ เสร็จแล้ว: %d\n📈 ทั้งหมด: %d\n\n📋 ล่าสุด:\n",
		counts.Pending,
		counts.Completed,
		counts.Total,
	)
	for _, report := range recent {
		icon := "✅"
		if report.IsPending() {
			icon = "🟡"
		}
		fmt.Fprintf(&builder, "%s #%d %s (%s)\n",
			icon,
			report.ReportID,
			report.PointID,
			report.CreatedAt.In(location).Format("15:04"),
		)
	}
	return strings.TrimRight(builder.String(), "\n")
}
