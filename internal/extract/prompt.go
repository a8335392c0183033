package extract

const ClassificationPrompt = `You are looking at a tax return package. Classify every page of this PDF by the kind of content on it.

Use exactly one of these types per page:
- "federal_form": main federal return pages (Form 1040 and its continuation pages)
- "federal_schedule": numbered federal schedules and federal forms attached to the return (Schedule 1-3, A, B, C, D, E, SE, Form 8949, 8889, ...)
- "k1_summary": the face page of a Schedule K-1
- "k1_detail": supplemental K-1 statements and footnotes
- "state_return": main state return pages
- "state_schedule": state schedules and supporting state forms
- "worksheet": preparer worksheets and computation statements
- "source_document": copies of W-2, 1099, 1098 or brokerage statements
- "cover_letter": preparer cover letters, invoices, filing instructions
- "direct_deposit": bank account and direct deposit disclosures
- "carryover_summary": carryover and prior-year comparison summaries
- "efile_authorization": Form 8879 and state e-file signature authorizations
- "crypto_detail": per-transaction cryptocurrency listings
- "other": anything else

Return a JSON array with one object per page, in page order:
[{"page": 1, "type": "cover_letter"}, {"page": 2, "type": "federal_form"}]

Pages are numbered from 1. Cover every page. Respond with ONLY the JSON array.`

const ExtractionPrompt = `Extract the tax return in this PDF into the record_tax_return tool.

Rules:
- Copy every dollar amount exactly as printed. Do not compute, estimate or re-add anything.
- Amounts are plain numbers without currency symbols or thousands separators. Amounts shown in parentheses are negative.
- Use the line description as the label, e.g. "Wages, salaries, tips" or "Schedule C net profit". Keep labels short and use each label at most once per list.
- income.total is the total income line of the federal return.
- States are identified by their two-letter postal code.
- In the summary, refunds are positive and balances due are negative.
- Only fill rates when the document states marginal or effective rates.
- Leave a field out when this part of the document does not show it. Do not guess values from other years.`

const YearPrompt = `What tax year is this document for? Answer with the four-digit year only.`
