package mail

import "fmt"

// InfoMailMJML is the notification template sent alongside a successful
// WhatsApp delivery when the recipient has an email on file.
func InfoMailMJML(completeName, message string) string {
	return fmt.Sprintf(`<mjml>
  <mj-head>
    <mj-attributes>
      <mj-all font-family="Roboto, sans-serif" />
    </mj-attributes>
  </mj-head>
  <mj-body>
    <mj-section>
      <mj-column>
        <mj-text font-size="15px" font-weight="bold">Estimado/a %s</mj-text>
      </mj-column>
    </mj-section>
    <mj-section>
      <mj-column>
        <mj-text font-size="13px">%s</mj-text>
      </mj-column>
    </mj-section>
  </mj-body>
</mjml>`, completeName, message)
}
